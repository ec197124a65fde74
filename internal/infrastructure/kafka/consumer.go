package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"
)

type PurchaseHandlerFunc func(PurchaseEvent)

type Consumer struct {
	reader  *kafka.Reader
	handler PurchaseHandlerFunc
}

func NewConsumer(brokerAddr, topic, groupID string, handler PurchaseHandlerFunc) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{brokerAddr},
		Topic:   topic,
		GroupID: groupID,
	})
	return &Consumer{
		reader:  reader,
		handler: handler,
	}
}

// Start tails the purchase audit topic until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	go func() {
		defer c.reader.Close()

		for {
			select {
			case <-ctx.Done():
				log.Println("Kafka consumer stopped")
				return
			default:
				m, err := c.reader.ReadMessage(ctx)
				if err != nil {
					log.Println("Kafka read error:", err)
					continue
				}

				var ev PurchaseEvent
				if err := json.Unmarshal(m.Value, &ev); err != nil {
					log.Println("Kafka JSON decode error:", err)
					continue
				}

				c.handler(ev)
			}
		}
	}()
}
