package kafka

import (
	"context"
	"encoding/json"
	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokerAddr, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokerAddr),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// RecordPurchase appends one settled purchase to the audit topic, keyed by
// buyer so a wallet's history stays in one partition.
func (p *Producer) RecordPurchase(ctx context.Context, ev PurchaseEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Buyer),
		Value: data,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
