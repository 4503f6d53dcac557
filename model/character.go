package model

import "time"

// Character is the reward target of a completed ticket. Class is the
// profession tag matched against a quest's class restriction.
type Character struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Class       string    `gorm:"size:64;not null" json:"class"`
	Level       int       `gorm:"default:1" json:"level"`
	Exp         int64     `gorm:"default:0" json:"exp"`
	SkillPoints int       `gorm:"default:0" json:"skill_points"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
