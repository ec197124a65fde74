package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KStasi/pixel-map/internal/protocol"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms waiting for a second player",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialServer()
		if err != nil {
			return err
		}
		defer client.close()

		if err := client.send(protocol.TypeListAvailableRooms, nil); err != nil {
			return err
		}
		raw, err := client.waitFor(protocol.TypeAvailableRooms, 5*time.Second)
		if err != nil {
			return err
		}

		var list protocol.AvailableRooms
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("cannot decode room list: %w", err)
		}
		if len(list.Rooms) == 0 {
			fmt.Println("no open rooms")
			return nil
		}
		for _, r := range list.Rooms {
			fmt.Printf("%s  host=%s  wager=%s  created=%s\n",
				r.RoomID, r.HostID, r.WagerAmount, r.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
