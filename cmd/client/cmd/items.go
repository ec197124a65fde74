package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KStasi/pixel-map/internal/protocol"
)

var itemsOwned bool

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Show the item board with live prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialServer()
		if err != nil {
			return err
		}
		defer client.close()

		if err := client.send(protocol.TypeRequestItemsState, nil); err != nil {
			return err
		}
		raw, err := client.waitFor(protocol.TypeItemsState, 10*time.Second)
		if err != nil {
			return err
		}

		var state protocol.ItemsState
		if err := json.Unmarshal(raw, &state); err != nil {
			return fmt.Errorf("cannot decode items: %w", err)
		}
		for _, it := range state.Items {
			if itemsOwned && it.Owner == "" {
				continue
			}
			owner := it.Owner
			if owner == "" {
				owner = "-"
			}
			fmt.Printf("#%04d  %-7s  price=%-8s  owner=%s\n", it.ID, it.Color, it.Price, owner)
		}
		return nil
	},
}

func init() {
	itemsCmd.Flags().BoolVar(&itemsOwned, "owned", false, "show only items that have an owner")
	rootCmd.AddCommand(itemsCmd)
}
