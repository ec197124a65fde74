package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/KStasi/pixel-map/internal/domain"
	"github.com/KStasi/pixel-map/internal/protocol"
	"github.com/KStasi/pixel-map/internal/settlement"
)

var (
	buyKey   string
	buyColor string
)

var buyCmd = &cobra.Command{
	Use:   "buy <item-id> [item-id...]",
	Short: "Buy items at their current server quotes",
	Long: `Fetches the live item board, totals the quoted prices for the requested
items, signs the purchase and submits it. The server recomputes the quotes
on its side; if a price moved between the fetch and the submit the purchase
is rejected and can simply be retried.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eoa, err := loadSigner(buyKey)
		if err != nil {
			return err
		}

		ids := make([]int, len(args))
		for i, a := range args {
			id, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("invalid item id %q", a)
			}
			ids[i] = id
		}

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
		quotes := make(map[int]protocol.ItemState, len(state.Items))
		for _, it := range state.Items {
			quotes[it.ID] = it
		}

		items := make([]domain.PurchaseItem, len(ids))
		total := decimal.Zero
		for i, id := range ids {
			q, ok := quotes[id]
			if !ok {
				return fmt.Errorf("item %d does not exist", id)
			}
			color := q.Color
			if buyColor != "" {
				color = buyColor
			}
			items[i] = domain.PurchaseItem{ID: id, Color: color, Price: q.Price}
			total = total.Add(q.Price)
		}
		fmt.Printf("buying %d item(s) for %s\n", len(items), total)

		payload, err := settlement.PurchasePayload(eoa.Address(), ids, total)
		if err != nil {
			return err
		}
		sig, err := eoa.Sign(payload)
		if err != nil {
			return fmt.Errorf("cannot sign purchase: %w", err)
		}

		if err := client.send(protocol.TypePurchaseItems, protocol.PurchaseItemsPayload{
			ParticipantID: eoa.Address(),
			Items:         items,
			TotalPrice:    total,
			Signature:     sig,
		}); err != nil {
			return err
		}

		if _, err := client.waitFor(protocol.TypeItemsState, 30*time.Second); err != nil {
			return err
		}
		fmt.Println("purchase settled")
		return nil
	},
}

func init() {
	buyCmd.Flags().StringVar(&buyKey, "key", "", "hex private key (defaults to "+privateKeyEnv+")")
	buyCmd.Flags().StringVar(&buyColor, "color", "", "repaint purchased items with this color")
	rootCmd.AddCommand(buyCmd)
}
