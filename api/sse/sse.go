package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questboard/cache"
	"github.com/kasuganosora/questboard/config"
	"github.com/kasuganosora/questboard/game/quest"
	mw "github.com/kasuganosora/questboard/middleware"
	"go.uber.org/zap"
)

const (
	announceChannel = "announce"
	keepAlive       = 30 * time.Second
)

// Handler streams ticket updates and announcements to a character.
type Handler struct {
	pubsub cache.PubSub
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>. Browsers cannot set headers on an
// EventSource, so the token travels in the query string. Only notices about
// the caller's own tickets are forwarded.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, quest.ChannelTicketUpdate, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"char_id\":%d}\n\n", claims.CharID)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event, forward := h.route(msg, claims.CharID)
			if !forward {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// route names the SSE event for msg and reports whether charID may see it.
func (h *Handler) route(msg *cache.Message, charID int64) (string, bool) {
	if msg.Channel == announceChannel {
		return "announce", true
	}
	var n quest.ReplicaNotice
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		h.logger.Debug("skipping bad ticket notice", zap.Error(err))
		return "", false
	}
	if n.OwnerID != charID {
		return "", false
	}
	if n.Removed {
		return "ticket_removed", true
	}
	return "ticket", true
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}
