package quest

import "errors"

var (
	// ErrContentUnavailable means the catalog has nothing for the class or a fetch failed.
	ErrContentUnavailable = errors.New("quest: content unavailable")
	// ErrDamagedArtifact means the ticket has lost its quest reference.
	ErrDamagedArtifact = errors.New("quest: damaged ticket")
	// ErrDuplicateOffer means the quest is already offered on the board.
	ErrDuplicateOffer = errors.New("quest: duplicate offer")

	// ErrAlreadyCompleted and ErrTicketFailed are stale turn-ins.
	ErrAlreadyCompleted = errors.New("quest: already completed")
	ErrTicketFailed     = errors.New("quest: ticket failed")
	ErrNotReady         = errors.New("quest: objective not complete")

	ErrTicketNotFound     = errors.New("quest: ticket not found")
	ErrNotOwner           = errors.New("quest: ticket held by another player")
	ErrProfessionMismatch = errors.New("quest: profession mismatch")
	ErrLevelTooLow        = errors.New("quest: level too low")
	ErrQuestUnavailable   = errors.New("quest: quest unavailable")
	ErrQuestLimitReached  = errors.New("quest: active quest limit reached")
)

var statusMessages = []struct {
	err error
	msg string
}{
	{ErrContentUnavailable, "no quests available for this class yet"},
	{ErrDamagedArtifact, "this quest ticket is damaged"},
	{ErrDuplicateOffer, "quest already on the board"},
	{ErrAlreadyCompleted, "already completed"},
	{ErrTicketFailed, "quest failed: time limit exceeded"},
	{ErrNotReady, "quest objective not yet complete"},
	{ErrTicketNotFound, "quest ticket not found"},
	{ErrNotOwner, "this quest ticket belongs to someone else"},
	{ErrProfessionMismatch, "this quest is for a different profession"},
	{ErrLevelTooLow, "your level is too low for this quest"},
	{ErrQuestUnavailable, "this quest is no longer available"},
	{ErrQuestLimitReached, "you cannot take more quests"},
}

// StatusMessage maps err to a short player-facing message. Unknown errors
// get a generic message so internal details never reach the client.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range statusMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "something went wrong, try again later"
}

// IsStaleTurnIn reports whether err rejects a turn-in on a terminal ticket.
func IsStaleTurnIn(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrTicketFailed)
}
