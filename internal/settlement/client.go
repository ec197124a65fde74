package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	myErrors "github.com/KStasi/pixel-map/internal/errors"
)

// Client multiplexes open/close settlement calls from concurrently active
// rooms onto one shared long-lived connection to the settlement peer.
// Responses are correlated back to their caller by the request's unique ID,
// never by message kind, so interleaved in-flight calls cannot cross-talk.
type Client struct {
	url     string
	timeout time.Duration

	mu      sync.Mutex // guards conn and pending
	conn    *websocket.Conn
	pending map[string]chan callResult

	writeMu sync.Mutex
}

type callResult struct {
	resp Response
	err  error
}

func NewClient(url string, callTimeout time.Duration) *Client {
	return &Client{
		url:     url,
		timeout: callTimeout,
		pending: make(map[string]chan callResult),
	}
}

// Connect dials the settlement peer and starts the response reader. Calls
// made before Connect succeeds fail fast with ErrNotConnected.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("cannot dial settlement peer %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	slog.Info("settlement connection established", "url", c.url)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Call sends one request and waits for the response carrying the same
// correlation ID. The pending entry is removed on resolution, rejection or
// timeout; a stale listener is never left behind.
func (c *Client) Call(ctx context.Context, method string, params json.RawMessage, signatures []string) (Response, error) {
	id := uuid.New().String()
	ch := make(chan callResult, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return Response{}, myErrors.ErrNotConnected
	}
	conn := c.conn
	c.pending[id] = ch
	c.mu.Unlock()

	req := Request{ID: id, Method: method, Params: params, Signatures: signatures}

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.drop(id)
		return Response{}, fmt.Errorf("%w: write failed: %s", myErrors.ErrNotConnected, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return Response{}, res.err
		}
		if res.resp.Error != nil {
			return Response{}, fmt.Errorf("%w: %s: %s",
				myErrors.ErrSettlementRejected, res.resp.Error.Code, res.resp.Error.Message)
		}
		return res.resp, nil
	case <-ctx.Done():
		c.drop(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w: %s", myErrors.ErrSettlementTimeout, ctx.Err())
		}
		// cancellation is the caller's doing, not a peer timeout
		return Response{}, fmt.Errorf("settlement call abandoned: %w", ctx.Err())
	case <-timer.C:
		c.drop(id)
		slog.Warn("settlement call timed out", "correlationId", id, "method", method)
		return Response{}, myErrors.ErrSettlementTimeout
	}
}

// OpenSession submits the fully signed canonical request and returns the
// session identifier minted by the peer.
func (c *Client) OpenSession(ctx context.Context, payload json.RawMessage, signatures []string) (string, error) {
	resp, err := c.Call(ctx, MethodCreateSession, payload, signatures)
	if err != nil {
		return "", err
	}

	var result createResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("malformed create session result: %w", err)
	}
	if result.AppSessionID == "" {
		return "", fmt.Errorf("%w: peer returned no session id", myErrors.ErrSettlementRejected)
	}
	return result.AppSessionID, nil
}

// CloseSession finalizes a session with the given final allocations.
func (c *Client) CloseSession(ctx context.Context, sessionID string, final []Allocation, signatures []string) (CloseReceipt, error) {
	params, err := json.Marshal(CloseParams{AppSessionID: sessionID, Allocations: final})
	if err != nil {
		return CloseReceipt{}, fmt.Errorf("cannot marshal close params: %w", err)
	}

	resp, err := c.Call(ctx, MethodCloseSession, params, signatures)
	if err != nil {
		return CloseReceipt{}, err
	}

	receipt := CloseReceipt{AppSessionID: sessionID, Status: "closed"}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &receipt); err != nil {
			return CloseReceipt{}, fmt.Errorf("malformed close session result: %w", err)
		}
	}
	return receipt, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var resp Response
		if err := conn.ReadJSON(&resp); err != nil {
			c.fail(conn, err)
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			// late or unsolicited response; dropping beats mis-delivery
			slog.Warn("dropping settlement response with no waiting call",
				"correlationId", resp.ID, "method", resp.Method)
			continue
		}
		ch <- callResult{resp: resp}
	}
}

// fail tears down the connection and releases every waiting caller.
func (c *Client) fail(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	waiting := c.pending
	c.pending = make(map[string]chan callResult)
	c.mu.Unlock()

	slog.Error("settlement connection lost", "error", cause, "abandonedCalls", len(waiting))
	for _, ch := range waiting {
		ch <- callResult{err: fmt.Errorf("%w: %s", myErrors.ErrNotConnected, cause)}
	}
}

func (c *Client) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
