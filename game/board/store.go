package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// slotRecord is one persisted slot; a null entry is an empty slot.
type slotRecord struct {
	TicketID  string       `json:"ticket_id"`
	QuestID   string       `json:"quest_id"`
	Quest     *quest.Quest `json:"quest"`
	OfferedAt int64        `json:"offered_at"`
}

// Store persists board snapshots in the quest_boards table.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save upserts the snapshot of b.
func (s *Store) Save(ctx context.Context, b *Board) error {
	snap := b.Snapshot()
	recs := make([]*slotRecord, len(snap.Slots))
	for i, t := range snap.Slots {
		if t == nil {
			continue
		}
		recs[i] = &slotRecord{TicketID: t.ID, QuestID: t.QuestID, Quest: t.Quest, OfferedAt: t.OfferedAt}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode board %s: %w", b.ID, err)
	}
	row := &model.QuestBoard{
		ID:              snap.ID,
		Class:           snap.Class,
		Capacity:        len(snap.Slots),
		State:           string(snap.State),
		LastPopulatedAt: snap.LastPopulatedAt,
		Taken:           snap.Taken,
		Slots:           datatypes.JSON(raw),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

// Load returns the stored snapshot of id, or ErrBoardNotFound. Slots that
// cannot be decoded come back as damaged tickets.
func (s *Store) Load(ctx context.Context, id string) (Snapshot, error) {
	var row model.QuestBoard
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrBoardNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		ID:              row.ID,
		Class:           row.Class,
		State:           State(row.State),
		LastPopulatedAt: row.LastPopulatedAt,
		Taken:           row.Taken,
		Slots:           make([]*quest.Ticket, row.Capacity),
	}
	var recs []*slotRecord
	if err := json.Unmarshal(row.Slots, &recs); err != nil {
		// Unreadable slot data: restore the board empty.
		snap.State = StateEmpty
		return snap, nil
	}
	for i, r := range recs {
		if r == nil || i >= len(snap.Slots) {
			continue
		}
		t := &quest.Ticket{
			ID:        r.TicketID,
			QuestID:   r.QuestID,
			BoardID:   row.ID,
			State:     quest.StateAvailable,
			OfferedAt: r.OfferedAt,
		}
		if r.Quest != nil && r.Quest.Validate() == nil {
			q := *r.Quest
			t.Quest = &q
		}
		snap.Slots[i] = t
	}
	return snap, nil
}
