package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/stagelink/internal/session"
	"github.com/example/stagelink/internal/token"
)

// Notifier dispatches a push notification, fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

type inboundMessage struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipientId"`
	Text        string `json:"text"`
}

type outboundMessage struct {
	Type      string `json:"type"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type errorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Handler authenticates websocket connects and relays direct messages
// between connected users. The token is verified once at connect time; the
// connection is trusted for its lifetime after that.
type Handler struct {
	hub      *Hub
	mgr      *session.Manager
	notifier Notifier
	log      *zap.SugaredLogger
}

// NewHandler constructs the realtime handler.
func NewHandler(hub *Hub, mgr *session.Manager, notifier Notifier, log *zap.SugaredLogger) *Handler {
	return &Handler{hub: hub, mgr: mgr, notifier: notifier, log: log}
}

// Serve runs one websocket connection. Mounted via websocket.New; the token
// comes from the ?token query parameter supplied at upgrade time.
func (h *Handler) Serve(c *websocket.Conn) {
	ctx := context.Background()

	claims, err := h.mgr.Authenticate(ctx, c.Query("token"))
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrExpiredToken) {
			reason = "expired"
		}
		_ = c.WriteJSON(errorMessage{Type: "error", Reason: reason})
		_ = c.Close()
		return
	}

	client := NewClient(claims.UserID, c)
	h.hub.Register(client)
	defer func() {
		h.hub.Unregister(client)
		_ = c.Close()
	}()
	go client.WritePump()

	h.log.Infow("websocket connected", "user_id", claims.UserID)
	h.touch(ctx, claims.UserID)

	for {
		var msg inboundMessage
		if err := c.ReadJSON(&msg); err != nil {
			h.log.Infow("websocket closed", "user_id", claims.UserID)
			return
		}
		if msg.Type != "message" || msg.RecipientID == "" {
			continue
		}
		h.relay(ctx, claims.UserID, msg)
	}
}

// relay pushes the message to the recipient's live connection, falling back
// to a push notification when they are offline. Message persistence is the
// transport consumer's concern, not handled here.
func (h *Handler) relay(ctx context.Context, senderID string, msg inboundMessage) {
	h.touch(ctx, senderID)
	h.touch(ctx, msg.RecipientID)

	out := outboundMessage{
		Type:      "message",
		SenderID:  senderID,
		Text:      msg.Text,
		Timestamp: time.Now().UnixMilli(),
	}
	if h.hub.Send(msg.RecipientID, out) {
		return
	}

	recipientID, err := uuid.Parse(msg.RecipientID)
	if err != nil {
		return
	}
	profile, err := h.mgr.GetProfile(ctx, recipientID)
	if err != nil || profile.DeviceToken == "" {
		return
	}
	deviceToken := profile.DeviceToken
	go func() {
		if err := h.notifier.Notify(context.Background(), deviceToken, "New message", msg.Text,
			map[string]string{"sender_id": senderID}); err != nil {
			h.log.Warnw("push notification failed", "recipient_id", msg.RecipientID, "error", err)
		}
	}()
}

func (h *Handler) touch(ctx context.Context, userID string) {
	if err := h.mgr.UpdateLastActive(ctx, userID); err != nil {
		h.log.Warnw("last-active touch failed", "user_id", userID, "error", err)
	}
}
