package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kasuganosora/questboard/game/quest"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults applied to quest definitions that omit a field.
const (
	DefaultTimeLimit = 60 // minutes
	DefaultLevel     = 1
)

// QuestPack is the top-level structure of a quest file. JSON packs parse
// through the same path since JSON is valid YAML.
type QuestPack struct {
	Quests []QuestDef `yaml:"quests" json:"quests"`
}

// QuestDef is one quest as written in a pack. The camelCase keys and
// "profession" of older packs are accepted as aliases.
type QuestDef struct {
	ID          string       `yaml:"id" json:"id"`
	Class       string       `yaml:"class" json:"class"`
	PlayerClass string       `yaml:"playerClass" json:"playerClass"`
	Profession  string       `yaml:"profession" json:"profession"`
	Level       *int         `yaml:"level" json:"level"`
	MinLevel    *int         `yaml:"min_level" json:"min_level"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description" json:"description"`
	TimeLimit   *int         `yaml:"time_limit" json:"time_limit"`
	TimeLimitV1 *int         `yaml:"timeLimit" json:"timeLimit"`
	Objective   ObjectiveDef `yaml:"objective" json:"objective"`
	Reward      RewardDef    `yaml:"reward" json:"reward"`
}

type ObjectiveDef struct {
	Type   string `yaml:"type" json:"type"`
	Target string `yaml:"target" json:"target"`
	Item   string `yaml:"item" json:"item"`
	Amount int    `yaml:"amount" json:"amount"`
}

type RewardDef struct {
	Type       string `yaml:"type" json:"type"`
	Tier       int    `yaml:"tier" json:"tier"`
	Amount     int    `yaml:"amount" json:"amount"`
	Experience int    `yaml:"experience" json:"experience"`
	Item       string `yaml:"item" json:"item"`
}

// Quest converts the definition, applying defaults. The result is not
// validated.
func (d QuestDef) Quest() quest.Quest {
	q := quest.Quest{
		ID:          strings.TrimSpace(d.ID),
		Class:       firstNonEmpty(d.Class, d.PlayerClass, d.Profession),
		MinLevel:    DefaultLevel,
		Title:       d.Title,
		Description: d.Description,
		TimeLimit:   DefaultTimeLimit,
		Objective: quest.Objective{
			Type:   quest.ObjectiveType(strings.ToLower(d.Objective.Type)),
			Target: firstNonEmpty(d.Objective.Target, d.Objective.Item),
			Amount: d.Objective.Amount,
		},
		Reward: quest.Reward{
			Type:   quest.RewardType(strings.ToLower(d.Reward.Type)),
			Tier:   d.Reward.Tier,
			Amount: d.Reward.Amount,
			Item:   d.Reward.Item,
		},
	}
	if v := firstSet(d.MinLevel, d.Level); v != nil {
		q.MinLevel = *v
	}
	if v := firstSet(d.TimeLimit, d.TimeLimitV1); v != nil {
		q.TimeLimit = *v
	}
	if q.Reward.Type == "" {
		q.Reward.Type = quest.RewardSkillPointToken
	}
	if q.Reward.Type == quest.RewardSkillPointToken && q.Reward.Tier == 0 {
		q.Reward.Tier = 1
	}
	if q.Reward.Amount == 0 && d.Reward.Experience > 0 {
		q.Reward.Amount = d.Reward.Experience
	}
	return q
}

// LoadQuestFile parses one quest pack.
func LoadQuestFile(path string) ([]quest.Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quest pack %s: %w", path, err)
	}
	var pack QuestPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse quest pack %s: %w", path, err)
	}
	out := make([]quest.Quest, 0, len(pack.Quests))
	for _, d := range pack.Quests {
		out = append(out, d.Quest())
	}
	return out, nil
}

// LoadQuestDir parses every .yaml, .yml and .json pack in dir in name
// order. Packs that fail to parse are reported in fileErrs and skipped;
// err is only set when dir itself cannot be read.
func LoadQuestDir(dir string) (quests []quest.Quest, fileErrs []error, err error) {
	names, err := packFiles(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range names {
		qs, err := LoadQuestFile(filepath.Join(dir, name))
		if err != nil {
			fileErrs = append(fileErrs, err)
			continue
		}
		quests = append(quests, qs...)
	}
	return quests, fileErrs, nil
}

func packFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read quest dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// QuestDir is a quest.ContentSource reading packs from a directory.
type QuestDir struct {
	Dir    string
	Logger *zap.Logger
}

func (d QuestDir) LoadQuests() ([]quest.Quest, error) {
	quests, fileErrs, err := LoadQuestDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", quest.ErrContentUnavailable, err)
	}
	for _, e := range fileErrs {
		d.Logger.Warn("skipping quest pack", zap.Error(e))
	}
	return quests, nil
}

// Report is the outcome of ValidateQuestDir.
type Report struct {
	Files    int      `json:"files"`
	Quests   int      `json:"quests"`
	Valid    int      `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// OK reports whether no problem was found.
func (r Report) OK() bool { return len(r.Problems) == 0 }

// ValidateQuestDir checks every pack in dir without loading it anywhere.
func ValidateQuestDir(dir string) (Report, error) {
	var r Report
	names, err := packFiles(dir)
	if err != nil {
		return r, err
	}
	r.Files = len(names)
	quests, fileErrs, err := LoadQuestDir(dir)
	if err != nil {
		return r, err
	}
	for _, e := range fileErrs {
		r.Problems = append(r.Problems, e.Error())
	}
	seen := map[string]bool{}
	for _, q := range quests {
		r.Quests++
		if err := q.Validate(); err != nil {
			r.Problems = append(r.Problems, err.Error())
			continue
		}
		key := quest.NormalizeClass(q.Class) + "/" + q.ID
		if seen[key] {
			r.Problems = append(r.Problems, fmt.Sprintf("quest %s: duplicate id in class %s", q.ID, quest.NormalizeClass(q.Class)))
			continue
		}
		seen[key] = true
		r.Valid++
	}
	return r, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstSet(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
