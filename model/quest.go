package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestTicket is one ticket held by a character. Quest holds the
// denormalised definition snapshot taken when the ticket was issued.
// Timestamps are wall-clock milliseconds, 0 meaning unset.
type QuestTicket struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	OwnerID         int64          `gorm:"index:idx_ticket_owner;not null" json:"owner_id"`
	QuestID         string         `gorm:"size:128;index:idx_ticket_quest" json:"quest_id"`
	BoardID         string         `gorm:"size:64" json:"board_id"`
	Quest           datatypes.JSON `json:"quest"`
	State           string         `gorm:"size:16;not null" json:"state"`
	OfferedAt       int64          `json:"offered_at"`
	AcceptedAt      int64          `json:"accepted_at"`
	CompletedAt     int64          `json:"completed_at"`
	Progress        int            `gorm:"default:0" json:"progress"`
	CompletionReady bool           `gorm:"default:false" json:"completion_ready"`
	RewardGranted   bool           `gorm:"default:false" json:"reward_granted"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuestBoard is the persisted snapshot of a bulletin board. Slots is a
// JSON array with one entry per slot, null for empty.
type QuestBoard struct {
	ID              string         `gorm:"primaryKey;size:64" json:"id"`
	Class           string         `gorm:"size:64" json:"class"`
	Capacity        int            `gorm:"not null" json:"capacity"`
	State           string         `gorm:"size:16;not null" json:"state"`
	LastPopulatedAt int64          `json:"last_populated_at"`
	Taken           int            `gorm:"default:0" json:"taken"`
	Slots           datatypes.JSON `json:"slots"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
