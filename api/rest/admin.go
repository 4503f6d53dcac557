package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questboard/audit"
	"github.com/kasuganosora/questboard/config"
	"github.com/kasuganosora/questboard/game/board"
	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/game/world"
	"github.com/kasuganosora/questboard/generator"
	mw "github.com/kasuganosora/questboard/middleware"
	"github.com/kasuganosora/questboard/model"
	"github.com/kasuganosora/questboard/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminDeps groups what the admin endpoints operate on. Fetcher and Audit
// are optional.
type AdminDeps struct {
	DB          *gorm.DB
	Loop        *world.Loop
	Service     *quest.Service
	Tracker     *quest.Tracker
	Boards      *board.Manager
	Content     quest.ContentSource
	Accumulator *quest.Accumulator
	Fetcher     *generator.Fetcher
	Scheduler   *scheduler.Scheduler
	Audit       quest.Auditor
	Security    config.SecurityConfig
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by the AdminAuth middleware.
type AdminHandler struct {
	d      AdminDeps
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(d AdminDeps, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{d: d, logger: logger}
}

// Metrics returns ticket counters, catalog size, boards and scheduler state.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()
	boards, err := h.d.Boards.Boards(ctx)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	catalog := h.d.Service.Catalog()
	out := gin.H{
		"tickets": h.d.Service.Stats(ctx),
		"catalog": gin.H{
			"total":   catalog.TotalCount(),
			"classes": catalog.Classes(),
		},
		"boards":          boards,
		"scheduler_tasks": h.d.Scheduler.Tasks(),
	}
	if h.d.Fetcher != nil {
		out["generator"] = gin.H{"available": h.d.Fetcher.Available()}
	}
	c.JSON(http.StatusOK, out)
}

// ListSchedulerTasks returns every registered ticker task.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.d.Scheduler.Tasks()})
}

// RunSchedulerTask runs a ticker task out of band.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	name := c.Param("name")
	if !h.d.Scheduler.RunNow(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	h.record(c, "run_task", name, nil, nil)
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

// ClearPlayer destroys every ticket a player holds.
// POST /api/admin/players/:id/clear
func (h *AdminHandler) ClearPlayer(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}
	n, err := h.d.Service.ClearAllForPlayer(c.Request.Context(), charID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// IssueTicket gives a player a ticket straight from the catalog.
// POST /api/admin/players/:id/tickets
func (h *AdminHandler) IssueTicket(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		QuestID string `json:"quest_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quest_id required"})
		return
	}
	t, err := h.d.Service.Issue(c.Request.Context(), charID, req.QuestID)
	h.record(c, "issue_ticket", req.QuestID, gin.H{"char_id": charID}, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": t.Observe(h.d.Service.Now())})
}

type actionRequest struct {
	Action string `json:"action" binding:"required"`
	Target string `json:"target"`
	Amount int    `json:"amount"`
}

// TrackAction reports a player action as if the game server observed it.
// POST /api/admin/players/:id/actions
func (h *AdminHandler) TrackAction(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action required"})
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	moved, err := h.d.Tracker.TrackAction(c.Request.Context(), charID, req.Action, req.Target, req.Amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if moved == nil {
		moved = []quest.View{}
	}
	c.JSON(http.StatusOK, gin.H{"updated": moved})
}

type createCharacterRequest struct {
	Name  string `json:"name"  binding:"required,min=1,max=32"`
	Class string `json:"class" binding:"required"`
	Level int    `json:"level"`
}

// CreateCharacter registers a character and returns a player token for it.
// POST /api/admin/characters
func (h *AdminHandler) CreateCharacter(c *gin.Context) {
	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	char := &model.Character{
		Name:  req.Name,
		Class: quest.NormalizeClass(req.Class),
		Level: max(req.Level, 1),
	}
	if err := h.d.DB.WithContext(c.Request.Context()).Create(char).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "character name already taken"})
		} else {
			writeError(c, h.logger, err)
		}
		return
	}
	token, err := mw.GenerateToken(char.ID, h.d.Security.JWTSecret, h.d.Security.TokenTTL)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.record(c, "create_character", char.Name, gin.H{"class": char.Class, "level": char.Level}, nil)
	c.JSON(http.StatusCreated, gin.H{"character": char, "token": token})
}

// IssueToken mints a fresh player token for an existing character.
// POST /api/admin/characters/:id/token
func (h *AdminHandler) IssueToken(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var char model.Character
	if err := h.d.DB.WithContext(c.Request.Context()).First(&char, charID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return
	}
	token, err := mw.GenerateToken(char.ID, h.d.Security.JWTSecret, h.d.Security.TokenTTL)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// RefreshBoard tops up one board.
// POST /api/admin/boards/:id/refresh
func (h *AdminHandler) RefreshBoard(c *gin.Context) {
	n, err := h.d.Boards.Refresh(c.Request.Context(), c.Param("id"))
	h.record(c, "refresh_board", c.Param("id"), gin.H{"placed": n}, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"placed": n})
}

// RegenerateBoard clears one board and repopulates it.
// POST /api/admin/boards/:id/regenerate
func (h *AdminHandler) RegenerateBoard(c *gin.Context) {
	n, err := h.d.Boards.Regenerate(c.Request.Context(), c.Param("id"))
	h.record(c, "regenerate_board", c.Param("id"), gin.H{"placed": n}, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"placed": n})
}

// RefreshAllBoards tops up every board.
// POST /api/admin/boards/refresh
func (h *AdminHandler) RefreshAllBoards(c *gin.Context) {
	n, err := h.d.Boards.RefreshAll(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"placed": n})
}

// ReloadCatalog re-reads the static quest content. On failure the previous
// catalog stays in service.
// POST /api/admin/catalog/reload
func (h *AdminHandler) ReloadCatalog(c *gin.Context) {
	catalog := h.d.Service.Catalog()
	err := catalog.LoadFromContent(h.d.Content)
	h.record(c, "reload_catalog", "", gin.H{"total": catalog.TotalCount()}, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": catalog.TotalCount(), "classes": catalog.Classes()})
}

// ForceUpdateClass fetches generated content for a class immediately.
// POST /api/admin/generator/:class/update
func (h *AdminHandler) ForceUpdateClass(c *gin.Context) {
	if h.d.Fetcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quest generator not configured"})
		return
	}
	class := c.Param("class")
	n, err := h.d.Fetcher.ForceUpdateClass(c.Request.Context(), class)
	h.record(c, "force_update_class", class, gin.H{"received": n}, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": quest.NormalizeClass(class), "received": n})
}

// AccumulationStats reports the pending generated content per class.
// GET /api/admin/accumulation
func (h *AdminHandler) AccumulationStats(c *gin.Context) {
	var extra []string
	if h.d.Fetcher != nil {
		extra = h.d.Fetcher.Classes()
	}
	stats, err := h.d.Accumulator.Stats(c.Request.Context(), extra...)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": stats})
}

// ClearAccumulation forgets the pending content and counter of a class.
// DELETE /api/admin/accumulation/:class
func (h *AdminHandler) ClearAccumulation(c *gin.Context) {
	ctx := c.Request.Context()
	class := c.Param("class")
	err := h.d.Loop.Do(ctx, func() error {
		return h.d.Accumulator.Clear(ctx, class)
	})
	h.record(c, "clear_accumulation", class, nil, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RemovePendingQuest drops one pending generated quest before any board
// picks it up.
// DELETE /api/admin/accumulation/:class/:quest_id
func (h *AdminHandler) RemovePendingQuest(c *gin.Context) {
	ctx := c.Request.Context()
	class, questID := c.Param("class"), c.Param("quest_id")
	var removed bool
	err := h.d.Loop.Do(ctx, func() error {
		var err error
		removed, err = h.d.Accumulator.Remove(ctx, class, questID)
		return err
	})
	h.record(c, "remove_pending_quest", questID, gin.H{"class": quest.NormalizeClass(class)}, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AdminHandler) record(c *gin.Context, action, target string, detail any, err error) {
	if h.d.Audit == nil {
		return
	}
	e := audit.Entry{
		TraceID: mw.GetTraceID(c),
		Action:  "admin." + action,
		Target:  target,
		Detail:  detail,
		IP:      c.ClientIP(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.d.Audit.Log(e)
}
