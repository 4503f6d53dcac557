package quest

import (
	"fmt"
	"strings"
)

// ClassAny marks a quest or board without a profession restriction.
const ClassAny = "any"

// ObjectiveType categorizes a quest objective.
type ObjectiveType string

const (
	ObjectiveCollect ObjectiveType = "collect"
	ObjectiveCraft   ObjectiveType = "craft"
	ObjectiveKill    ObjectiveType = "kill"
	ObjectiveMine    ObjectiveType = "mine"
	ObjectiveSmelt   ObjectiveType = "smelt"
	ObjectiveBrew    ObjectiveType = "brew"
	ObjectiveCook    ObjectiveType = "cook"
)

var objectiveTypes = map[ObjectiveType]bool{
	ObjectiveCollect: true, ObjectiveCraft: true, ObjectiveKill: true,
	ObjectiveMine: true, ObjectiveSmelt: true, ObjectiveBrew: true, ObjectiveCook: true,
}

// Valid reports whether t is a known objective type.
func (t ObjectiveType) Valid() bool { return objectiveTypes[t] }

// RewardType categorizes a quest reward.
type RewardType string

const (
	RewardExperience      RewardType = "experience"
	RewardSkillPointToken RewardType = "skill_point_token"
	RewardItem            RewardType = "item"
)

// Valid reports whether r is a reward type the granter can apply.
func (r RewardType) Valid() bool {
	switch r {
	case RewardExperience, RewardSkillPointToken, RewardItem:
		return true
	}
	return false
}

// Objective describes the single requirement of a quest.
type Objective struct {
	Type   ObjectiveType `json:"type"`
	Target string        `json:"target"`
	Amount int           `json:"amount"`
}

// Reward is granted once on turn-in. Tier is meaningful for skill point
// tokens (1-3); Amount is the magnitude for experience and items.
type Reward struct {
	Type   RewardType `json:"type"`
	Tier   int        `json:"tier,omitempty"`
	Amount int        `json:"amount,omitempty"`
	Item   string     `json:"item,omitempty"`
}

// Quest is an immutable quest definition.
type Quest struct {
	ID          string    `json:"id"`
	Class       string    `json:"class"`
	MinLevel    int       `json:"min_level"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Objective   Objective `json:"objective"`
	TimeLimit   int       `json:"time_limit"` // minutes, 0 = unlimited
	Reward      Reward    `json:"reward"`
}

// Validate checks the fields every quest must carry.
func (q *Quest) Validate() error {
	switch {
	case strings.TrimSpace(q.ID) == "":
		return fmt.Errorf("quest: missing id")
	case strings.TrimSpace(q.Title) == "":
		return fmt.Errorf("quest %s: missing title", q.ID)
	case !q.Objective.Type.Valid():
		return fmt.Errorf("quest %s: unknown objective type %q", q.ID, q.Objective.Type)
	case q.Objective.Amount <= 0:
		return fmt.Errorf("quest %s: objective amount must be positive", q.ID)
	case q.TimeLimit < 0:
		return fmt.Errorf("quest %s: negative time limit", q.ID)
	case !q.Reward.Type.Valid():
		return fmt.Errorf("quest %s: unknown reward type %q", q.ID, q.Reward.Type)
	}
	return nil
}

// AvailableTo reports whether a character of class and level may take q.
func (q *Quest) AvailableTo(class string, level int) error {
	if !ClassMatches(q.Class, class) {
		return ErrProfessionMismatch
	}
	if level < q.MinLevel {
		return ErrLevelTooLow
	}
	return nil
}

// NormalizeClass lower-cases a class tag and strips a namespace prefix
// such as "origins:". Empty becomes ClassAny.
func NormalizeClass(class string) string {
	class = strings.ToLower(strings.TrimSpace(class))
	if i := strings.LastIndexByte(class, ':'); i >= 0 {
		class = class[i+1:]
	}
	if class == "" {
		return ClassAny
	}
	return class
}

// ClassMatches reports whether a quest restricted to questClass is open to
// playerClass.
func ClassMatches(questClass, playerClass string) bool {
	qc := NormalizeClass(questClass)
	return qc == ClassAny || qc == NormalizeClass(playerClass)
}
