package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questboard/game/board"
	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/game/world"
	"github.com/kasuganosora/questboard/generator"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
	msg    string // empty = quest.StatusMessage
}{
	{board.ErrBoardNotFound, http.StatusNotFound, "board not found"},
	{board.ErrSlotOutOfRange, http.StatusBadRequest, "no such slot"},
	{quest.ErrCharacterNotFound, http.StatusNotFound, "character not found"},
	{quest.ErrUnknownAction, http.StatusBadRequest, "unknown action"},
	{generator.ErrInFlight, http.StatusConflict, "an update for this class is already running"},
	{world.ErrLoopFull, http.StatusServiceUnavailable, "server busy, try again later"},
	{world.ErrLoopStopped, http.StatusServiceUnavailable, "server shutting down"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "request timed out"},
	{quest.ErrTicketNotFound, http.StatusNotFound, ""},
	{quest.ErrNotOwner, http.StatusForbidden, ""},
	{quest.ErrAlreadyCompleted, http.StatusConflict, ""},
	{quest.ErrTicketFailed, http.StatusConflict, ""},
	{quest.ErrQuestUnavailable, http.StatusConflict, ""},
	{quest.ErrDuplicateOffer, http.StatusConflict, ""},
	{quest.ErrNotReady, http.StatusUnprocessableEntity, ""},
	{quest.ErrProfessionMismatch, http.StatusUnprocessableEntity, ""},
	{quest.ErrLevelTooLow, http.StatusUnprocessableEntity, ""},
	{quest.ErrQuestLimitReached, http.StatusUnprocessableEntity, ""},
	{quest.ErrDamagedArtifact, http.StatusUnprocessableEntity, ""},
	{quest.ErrContentUnavailable, http.StatusServiceUnavailable, ""},
}

// writeError answers err with its mapped status and a short message.
// Unmapped errors are logged and reported as 500 with a generic message.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			msg := e.msg
			if msg == "" {
				msg = quest.StatusMessage(err)
			}
			c.JSON(e.status, gin.H{"error": msg})
			return
		}
	}
	log.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": quest.StatusMessage(err)})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
