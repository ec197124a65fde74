package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/KStasi/pixel-map/internal/protocol"
)

var (
	joinRoomID string
	joinWager  string
	joinKey    string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room (or open a new one) and follow the settlement handshake",
	Long: `Joins the given room, or opens a fresh one when --room is omitted.
Signature requests from the server are signed automatically with the
configured private key. The command keeps printing room events until the
connection drops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eoa, err := loadSigner(joinKey)
		if err != nil {
			return err
		}
		wager, err := decimal.NewFromString(joinWager)
		if err != nil {
			return fmt.Errorf("invalid wager %q: %w", joinWager, err)
		}

		client, err := dialServer()
		if err != nil {
			return err
		}
		defer client.close()

		join := protocol.JoinRoomPayload{
			RoomID:        joinRoomID,
			ParticipantID: eoa.Address(),
			WagerAmount:   wager,
		}
		if err := client.send(protocol.TypeJoinRoom, join); err != nil {
			return err
		}

		for {
			_, raw, err := client.conn.ReadMessage()
			if err != nil {
				return nil
			}
			if err := handleRoomFrame(client, eoa.Address(), raw, func(payload []byte) (string, error) {
				return eoa.Sign(payload)
			}); err != nil {
				return err
			}
		}
	},
}

// handleRoomFrame prints one server frame and answers signature requests.
func handleRoomFrame(client *wsClient, self string, raw []byte, sign func([]byte) (string, error)) error {
	var head struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil
	}

	switch head.Type {
	case protocol.TypeRoomCreated:
		var msg protocol.RoomCreated
		json.Unmarshal(raw, &msg)
		fmt.Printf("room opened: %s (you are %s)\n", msg.RoomID, msg.Role)

	case protocol.TypeRoomReady:
		var msg protocol.RoomReady
		json.Unmarshal(raw, &msg)
		fmt.Printf("room %s is full, negotiating settlement session\n", msg.RoomID)

	case protocol.TypeSignatureRequest:
		var msg protocol.SignatureRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		fmt.Println("signing session request")
		sig, err := sign(msg.RequestToSign)
		if err != nil {
			return fmt.Errorf("cannot sign session request: %w", err)
		}
		return client.send(protocol.TypeSubmitSignature, protocol.SubmitSignaturePayload{
			RoomID:    msg.RoomID,
			Signature: sig,
		})

	case protocol.TypeSignatureConfirmed:
		fmt.Println("signature accepted")

	case protocol.TypeRoomState:
		fmt.Println(string(raw))

	case protocol.TypeError:
		return fmt.Errorf("server rejected request: %s (%s)", head.Message, head.Code)
	}
	return nil
}

func init() {
	joinCmd.Flags().StringVar(&joinRoomID, "room", "", "room id to join; omit to open a new room")
	joinCmd.Flags().StringVar(&joinWager, "wager", "1", "wager amount")
	joinCmd.Flags().StringVar(&joinKey, "key", "", "hex private key (defaults to "+privateKeyEnv+")")
	rootCmd.AddCommand(joinCmd)
}
