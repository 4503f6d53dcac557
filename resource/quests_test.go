package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/questboard/game/quest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

const minerPack = `
quests:
  - id: iron_run
    class: origins:miner
    min_level: 3
    title: Iron Run
    time_limit: 15
    objective: {type: mine, target: iron_ore, amount: 8}
    reward: {type: skill_point_token, tier: 2}
  - id: coal_sack
    class: miner
    title: Coal Sack
    objective: {type: Collect, target: coal, amount: 16}
    reward: {type: experience, amount: 250}
`

// Legacy packs use camelCase keys, "profession" and objective "item".
const legacyPack = `{"quests": [
  {"id": "bake", "profession": "cook", "level": 2, "title": "Bake Bread",
   "timeLimit": 0,
   "objective": {"type": "craft", "item": "minecraft:bread", "amount": 4},
   "reward": {"type": "experience", "experience": 500}}
]}`

func TestLoadQuestFile_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "miner.yaml", minerPack)

	qs, err := LoadQuestFile(filepath.Join(dir, "miner.yaml"))
	require.NoError(t, err)
	require.Len(t, qs, 2)

	assert.Equal(t, 3, qs[0].MinLevel)
	assert.Equal(t, 15, qs[0].TimeLimit)
	assert.Equal(t, quest.Reward{Type: quest.RewardSkillPointToken, Tier: 2}, qs[0].Reward)

	assert.Equal(t, DefaultLevel, qs[1].MinLevel)
	assert.Equal(t, DefaultTimeLimit, qs[1].TimeLimit)
	assert.Equal(t, quest.ObjectiveCollect, qs[1].Objective.Type)
	for _, q := range qs {
		assert.NoError(t, q.Validate())
	}
}

func TestLoadQuestFile_LegacyJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cook_quests.json", legacyPack)

	qs, err := LoadQuestFile(filepath.Join(dir, "cook_quests.json"))
	require.NoError(t, err)
	require.Len(t, qs, 1)
	q := qs[0]
	assert.Equal(t, "cook", q.Class)
	assert.Equal(t, 2, q.MinLevel)
	assert.Zero(t, q.TimeLimit, "explicit zero means unlimited")
	assert.Equal(t, "minecraft:bread", q.Objective.Target)
	assert.Equal(t, 500, q.Reward.Amount)
}

func TestLoadQuestDir_SkipsBadPacks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", minerPack)
	writeFile(t, dir, "b.json", legacyPack)
	writeFile(t, dir, "broken.yml", "quests: [::")
	writeFile(t, dir, "notes.txt", "ignored")

	qs, fileErrs, err := LoadQuestDir(dir)
	require.NoError(t, err)
	assert.Len(t, qs, 3)
	require.Len(t, fileErrs, 1)
	assert.Contains(t, fileErrs[0].Error(), "broken.yml")

	_, _, err = LoadQuestDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestQuestDir_FeedsCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", minerPack)
	logger := zap.NewNop()

	c := quest.NewCatalog(logger)
	require.NoError(t, c.LoadFromContent(QuestDir{Dir: dir, Logger: logger}))
	assert.Equal(t, 2, c.CountForClass("miner"))

	err := c.LoadFromContent(QuestDir{Dir: filepath.Join(dir, "missing"), Logger: logger})
	assert.ErrorIs(t, err, quest.ErrContentUnavailable)
	assert.Equal(t, 2, c.TotalCount(), "failed reload keeps the old catalog")
}

func TestValidateQuestDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", minerPack)
	writeFile(t, dir, "dup.yaml", `
quests:
  - id: iron_run
    class: miner
    title: Again
    objective: {type: mine, target: iron_ore, amount: 1}
  - id: nothing
    class: miner
    title: No Objective
    objective: {type: dance, target: floor, amount: 1}
`)

	r, err := ValidateQuestDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Files)
	assert.Equal(t, 4, r.Quests)
	assert.Equal(t, 2, r.Valid)
	assert.False(t, r.OK())
	assert.Len(t, r.Problems, 2)
}
