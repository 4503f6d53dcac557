package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questboard/game/quest"
	mw "github.com/kasuganosora/questboard/middleware"
	"go.uber.org/zap"
)

// TicketHandler serves the tickets held by the authenticated character.
type TicketHandler struct {
	svc    *quest.Service
	logger *zap.Logger
}

// NewTicketHandler creates a TicketHandler.
func NewTicketHandler(svc *quest.Service, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, logger: logger}
}

// List handles GET /api/tickets.
func (h *TicketHandler) List(c *gin.Context) {
	views, err := h.svc.List(c.Request.Context(), mw.GetCharID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": views})
}

// Get handles GET /api/tickets/:id.
func (h *TicketHandler) Get(c *gin.Context) {
	view, err := h.svc.View(c.Request.Context(), mw.GetCharID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// TurnIn handles POST /api/tickets/:id/turn-in.
func (h *TicketHandler) TurnIn(c *gin.Context) {
	view, err := h.svc.TurnIn(c.Request.Context(), mw.GetCharID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp := gin.H{"ticket": view}
	if view.Quest != nil {
		resp["reward"] = view.Quest.Reward
	}
	c.JSON(http.StatusOK, resp)
}

// Discard handles DELETE /api/tickets/:id.
func (h *TicketHandler) Discard(c *gin.Context) {
	if err := h.svc.Discard(c.Request.Context(), mw.GetCharID(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
