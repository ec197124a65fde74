package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/KStasi/pixel-map/internal/infrastructure/kafka"
)

var (
	auditBroker string
	auditTopic  string
	auditGroup  string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Tail the purchase audit topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		consumer := kafka.NewConsumer(auditBroker, auditTopic, auditGroup, func(ev kafka.PurchaseEvent) {
			fmt.Printf("%s  buyer=%s  total=%s  items=%d  session=%s\n",
				ev.SettledAt.Format("15:04:05"), ev.Buyer, ev.TotalPrice, len(ev.Items), ev.SessionID)
		})
		consumer.Start(ctx)

		<-ctx.Done()
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditBroker, "broker", "localhost:9092", "kafka broker address")
	auditCmd.Flags().StringVar(&auditTopic, "topic", "pixel_purchases", "audit topic")
	auditCmd.Flags().StringVar(&auditGroup, "group", "pixelctl", "consumer group id")
	rootCmd.AddCommand(auditCmd)
}
