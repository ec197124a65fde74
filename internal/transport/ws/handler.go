package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KStasi/pixel-map/internal/protocol"
	"github.com/KStasi/pixel-map/internal/service"
)

const pongWait = 60 * time.Second

type Handler struct {
	services *service.Service
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(services *service.Service, hub *Hub) *Handler {
	return &Handler{
		services: services,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(ws)
	h.hub.register(conn)
	slog.Info("client connected", "remote", ws.RemoteAddr())

	defer func() {
		h.hub.unregister(conn)
		if addr := conn.address(); addr != "" {
			h.services.Disconnect(context.Background(), addr)
		}
		conn.close()
		slog.Info("client disconnected", "remote", ws.RemoteAddr())
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "error", err)
			}
			return
		}
		h.dispatch(r.Context(), conn, raw)
	}
}

// dispatch routes one inbound frame. Messages on a connection are handled in
// order; a join must be fully seated before the same client's next message.
func (h *Handler) dispatch(ctx context.Context, conn *Conn, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic while handling message", "panic", rec)
			h.sendError(conn, codeInternal, "internal error")
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(conn, "INVALID_PAYLOAD", "message is not a valid envelope")
		return
	}

	slog.Info("message received", "type", env.Type)

	switch env.Type {
	case protocol.TypeJoinRoom:
		var p protocol.JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ParticipantID == "" {
			h.sendError(conn, "INVALID_PAYLOAD", "joinRoom needs a participantId")
			return
		}
		conn.bind(p.ParticipantID)
		if err := h.services.JoinRoom(ctx, conn, p.RoomID, p.ParticipantID, p.WagerAmount); err != nil {
			h.replyError(conn, env.Type, err)
		}

	case protocol.TypeListAvailableRooms:
		if err := h.services.ListAvailableRooms(ctx, conn); err != nil {
			h.replyError(conn, env.Type, err)
		}

	case protocol.TypeSubmitSignature:
		var p protocol.SubmitSignaturePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.RoomID == "" || p.Signature == "" {
			h.sendError(conn, "INVALID_PAYLOAD", "submitSignature needs roomId and signature")
			return
		}
		if err := h.services.SubmitSignature(ctx, p.RoomID, conn.address(), p.Signature); err != nil {
			h.replyError(conn, env.Type, err)
		}

	case protocol.TypePurchaseItems:
		var p protocol.PurchaseItemsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ParticipantID == "" || len(p.Items) == 0 || p.Signature == "" {
			h.sendError(conn, "INVALID_PAYLOAD", "purchaseItems needs participantId, items and signature")
			return
		}
		conn.bind(p.ParticipantID)
		if err := h.services.PurchaseItems(ctx, conn, p.ParticipantID, p.Items, p.TotalPrice, p.Signature); err != nil {
			h.replyError(conn, env.Type, err)
		}

	case protocol.TypeRequestItemsState:
		if err := h.services.ItemsState(ctx, conn); err != nil {
			h.replyError(conn, env.Type, err)
		}

	default:
		h.sendError(conn, "UNKNOWN_MESSAGE_TYPE", "unsupported message type: "+env.Type)
	}
}

func (h *Handler) replyError(conn *Conn, msgType string, err error) {
	code := codeFor(err)
	if code == codeInternal {
		slog.Error("request failed", "type", msgType, "error", err)
	} else {
		slog.Info("request rejected", "type", msgType, "code", code)
	}
	h.sendError(conn, code, err.Error())
}

func (h *Handler) sendError(conn *Conn, code, message string) {
	if err := conn.Send(protocol.NewError(code, message)); err != nil {
		slog.Debug("cannot deliver error message", "error", err)
	}
}
