package quest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kasuganosora/questboard/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TicketStore is the holding of every player: tickets that have left a
// board. It round-trips every Ticket field.
type TicketStore interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	Save(ctx context.Context, t *Ticket) error
	ListByOwner(ctx context.Context, owner int64) ([]*Ticket, error)
	CountActive(ctx context.Context, owner int64) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, owner int64) ([]string, error)
	// Complete persists a COMPLETED ticket and runs grant in the same
	// transaction. It fails with ErrAlreadyCompleted if the reward of the
	// ticket was granted before.
	Complete(ctx context.Context, t *Ticket, grant func(tx *gorm.DB) error) error
}

// GormStore keeps tickets in the quest_tickets table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func toRow(t *Ticket) (*model.QuestTicket, error) {
	row := &model.QuestTicket{
		ID:              t.ID,
		OwnerID:         t.OwnerID,
		QuestID:         t.QuestID,
		BoardID:         t.BoardID,
		State:           string(t.State),
		OfferedAt:       t.OfferedAt,
		AcceptedAt:      t.AcceptedAt,
		CompletedAt:     t.CompletedAt,
		Progress:        t.Progress,
		CompletionReady: t.CompletionReady,
		RewardGranted:   t.RewardGranted,
	}
	if t.Quest != nil {
		b, err := json.Marshal(t.Quest)
		if err != nil {
			return nil, fmt.Errorf("encode quest snapshot: %w", err)
		}
		row.Quest = datatypes.JSON(b)
	}
	return row, nil
}

// fromRow never fails: an unreadable quest snapshot yields a damaged ticket.
func fromRow(row *model.QuestTicket) *Ticket {
	t := &Ticket{
		ID:              row.ID,
		OwnerID:         row.OwnerID,
		QuestID:         row.QuestID,
		BoardID:         row.BoardID,
		State:           State(row.State),
		OfferedAt:       row.OfferedAt,
		AcceptedAt:      row.AcceptedAt,
		CompletedAt:     row.CompletedAt,
		Progress:        row.Progress,
		CompletionReady: row.CompletionReady,
		RewardGranted:   row.RewardGranted,
	}
	if len(row.Quest) > 0 {
		var q Quest
		if err := json.Unmarshal(row.Quest, &q); err == nil && q.ID != "" {
			t.Quest = &q
		}
	}
	return t
}

func (s *GormStore) Create(ctx context.Context, t *Ticket) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*Ticket, error) {
	var row model.QuestTicket
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row), nil
}

// Save writes the mutable fields. The quest snapshot is never rewritten.
func (s *GormStore) Save(ctx context.Context, t *Ticket) error {
	res := s.db.WithContext(ctx).Model(&model.QuestTicket{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"owner_id":         t.OwnerID,
			"state":            string(t.State),
			"accepted_at":      t.AcceptedAt,
			"completed_at":     t.CompletedAt,
			"progress":         t.Progress,
			"completion_ready": t.CompletionReady,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (s *GormStore) ListByOwner(ctx context.Context, owner int64) ([]*Ticket, error) {
	var rows []model.QuestTicket
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", owner).
		Order("created_at, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Ticket, len(rows))
	for i := range rows {
		out[i] = fromRow(&rows[i])
	}
	return out, nil
}

func (s *GormStore) CountActive(ctx context.Context, owner int64) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.QuestTicket{}).
		Where("owner_id = ? AND state IN ?", owner, []string{string(StateAccepted), string(StateInProgress)}).
		Count(&n).Error
	return int(n), err
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.QuestTicket{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// DeleteByOwner removes every ticket of owner and returns their ids.
func (s *GormStore) DeleteByOwner(ctx context.Context, owner int64) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.QuestTicket{}).Where("owner_id = ?", owner).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Where("id IN ?", ids).Delete(&model.QuestTicket{}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GormStore) Complete(ctx context.Context, t *Ticket, grant func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuestTicket{}).
			Where("id = ? AND reward_granted = ?", t.ID, false).
			Updates(map[string]interface{}{
				"state":            string(StateCompleted),
				"accepted_at":      int64(0),
				"completed_at":     t.CompletedAt,
				"progress":         t.Progress,
				"completion_ready": t.CompletionReady,
				"reward_granted":   true,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyCompleted
		}
		if grant != nil {
			if err := grant(tx); err != nil {
				return err
			}
		}
		t.RewardGranted = true
		return nil
	})
}
