package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questboard/game/board"
	mw "github.com/kasuganosora/questboard/middleware"
	"go.uber.org/zap"
)

// BoardHandler serves the bulletin boards to players.
type BoardHandler struct {
	boards *board.Manager
	logger *zap.Logger
}

// NewBoardHandler creates a BoardHandler.
func NewBoardHandler(boards *board.Manager, logger *zap.Logger) *BoardHandler {
	return &BoardHandler{boards: boards, logger: logger}
}

// List handles GET /api/boards.
func (h *BoardHandler) List(c *gin.Context) {
	infos, err := h.boards.Boards(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boards": infos})
}

// Open handles GET /api/boards/:id. Viewing an empty board populates it.
func (h *BoardHandler) Open(c *gin.Context) {
	info, err := h.boards.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type takeRequest struct {
	Slot *int `json:"slot" binding:"required,min=0"`
}

// Take handles POST /api/boards/:id/take.
func (h *BoardHandler) Take(c *gin.Context) {
	var req takeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot required"})
		return
	}
	view, err := h.boards.Take(c.Request.Context(), c.Param("id"), *req.Slot, mw.GetCharID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": view})
}
