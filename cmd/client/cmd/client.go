package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KStasi/pixel-map/internal/protocol"
	"github.com/KStasi/pixel-map/internal/signer"
)

const privateKeyEnv = "PIXEL_PRIVATE_KEY"

// wsClient is a thin frame-level wrapper shared by all subcommands.
type wsClient struct {
	conn *websocket.Conn
}

func dialServer() (*wsClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %w", serverURL, err)
	}
	return &wsClient{conn: conn}, nil
}

func (c *wsClient) close() {
	c.conn.Close()
}

func (c *wsClient) send(msgType string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("cannot marshal payload: %w", err)
		}
		raw = b
	}
	return c.conn.WriteJSON(protocol.Envelope{Type: msgType, Payload: raw})
}

// waitFor reads frames until one of the given type arrives. A server error
// frame fails the wait immediately.
func (c *wsClient) waitFor(msgType string, timeout time.Duration) (json.RawMessage, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.conn.SetReadDeadline(deadline)
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("connection lost: %w", err)
		}
		var head struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		switch head.Type {
		case msgType:
			return raw, nil
		case protocol.TypeError:
			return nil, fmt.Errorf("server rejected request: %s (%s)", head.Message, head.Code)
		}
	}
	return nil, fmt.Errorf("timed out waiting for %s", msgType)
}

func loadSigner(keyFlag string) (*signer.EOASigner, error) {
	key := keyFlag
	if key == "" {
		key = os.Getenv(privateKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("no private key: pass --key or set %s", privateKeyEnv)
	}
	return signer.NewEOASigner(key)
}
