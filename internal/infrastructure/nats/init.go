package natsjs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	StreamName              = "PIXEL"
	RoomSubjectPrefix       = "pixel.room.%s"       // pixel.room.<event type>
	SettlementSubjectPrefix = "pixel.settlement.%s" // pixel.settlement.<event type>
)

type JSClient struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

func NewJSClient(url string) *JSClient {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Printf("NATS error: %v", err)
		}),
	)
	if err != nil {
		log.Fatalf("nats connect: %v", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("nats jetstream: %v", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"pixel.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Fatalf("stream creation failed: %v", err)
	}

	return &JSClient{Conn: nc, JS: js}
}

func (c *JSClient) PublishRoomEvent(ctx context.Context, event RoomEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	return c.publish(ctx, fmt.Sprintf(RoomSubjectPrefix, event.Type), event.EventID, event)
}

func (c *JSClient) PublishSettlementEvent(ctx context.Context, event SettlementEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	return c.publish(ctx, fmt.Sprintf(SettlementSubjectPrefix, event.Type), event.EventID, event)
}

func (c *JSClient) publish(ctx context.Context, subject, messageID string, payload any) error {
	msg := nats.NewMsg(subject)
	msg.Header.Set("Message-ID", messageID)

	var err error
	msg.Data, err = json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = c.JS.PublishMsg(msg, nats.MsgId(messageID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}
