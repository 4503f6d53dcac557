package quest

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/questboard/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrCharacterNotFound is returned for an unknown player id.
var ErrCharacterNotFound = errors.New("quest: character not found")

// Player is what eligibility checks need to know about a character.
type Player struct {
	ID    int64
	Name  string
	Class string
	Level int
}

// PlayerDirectory resolves player ids.
type PlayerDirectory interface {
	Player(ctx context.Context, id int64) (Player, error)
}

// RewardGranter applies a reward inside the turn-in transaction tx.
type RewardGranter interface {
	Grant(ctx context.Context, tx *gorm.DB, playerID int64, r Reward) error
}

// Characters is the gorm-backed PlayerDirectory and RewardGranter.
type Characters struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCharacters creates a Characters over the characters table.
func NewCharacters(db *gorm.DB, logger *zap.Logger) *Characters {
	return &Characters{db: db, logger: logger}
}

func (c *Characters) Player(ctx context.Context, id int64) (Player, error) {
	var ch model.Character
	err := c.db.WithContext(ctx).First(&ch, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Player{}, ErrCharacterNotFound
	}
	if err != nil {
		return Player{}, err
	}
	return Player{ID: ch.ID, Name: ch.Name, Class: ch.Class, Level: ch.Level}, nil
}

// Grant adds experience or skill points. Item rewards are only logged:
// inventories live outside this service.
func (c *Characters) Grant(ctx context.Context, tx *gorm.DB, playerID int64, r Reward) error {
	var column string
	var delta int
	switch r.Type {
	case RewardExperience:
		column, delta = "exp", r.Amount
	case RewardSkillPointToken:
		column, delta = "skill_points", min(max(r.Tier, 1), 3)
	case RewardItem:
		c.logger.Info("item reward granted",
			zap.Int64("char_id", playerID),
			zap.String("item", r.Item),
			zap.Int("amount", r.Amount))
		return nil
	default:
		return fmt.Errorf("unknown reward type %q", r.Type)
	}
	res := tx.WithContext(ctx).Model(&model.Character{}).
		Where("id = ?", playerID).
		Update(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCharacterNotFound
	}
	c.logger.Info("reward granted",
		zap.Int64("char_id", playerID),
		zap.String("type", string(r.Type)),
		zap.Int("delta", delta))
	return nil
}
