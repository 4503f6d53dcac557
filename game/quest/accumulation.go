package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/kasuganosora/questboard/cache"
	"go.uber.org/zap"
)

// DefaultMaxRequests is the number of fetches accumulated per class before
// the next one starts a fresh cycle.
const DefaultMaxRequests = 3

func pendingKey(class string) string  { return "quest:accum:" + class + ":pending" }
func requestsKey(class string) string { return "quest:accum:" + class + ":requests" }

// AccumulationStats is a per-class snapshot for the admin API.
type AccumulationStats struct {
	Class       string `json:"class"`
	Pending     int    `json:"pending"`
	Requests    int    `json:"requests"`
	MaxRequests int    `json:"max_requests"`
	ClearOnNext bool   `json:"clear_on_next_fetch"`
}

// Accumulator buffers externally generated quests per class until a board
// pulls them. Storage lives in a cache.Cache so a Redis backend survives
// restarts; mu serialises the read-modify-write cycles of this process.
type Accumulator struct {
	c           cache.Cache
	maxRequests int
	logger      *zap.Logger

	mu      sync.Mutex
	classes []string
}

// NewAccumulator creates an Accumulator. maxRequests <= 0 selects
// DefaultMaxRequests.
func NewAccumulator(c cache.Cache, maxRequests int, logger *zap.Logger) *Accumulator {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Accumulator{c: c, maxRequests: maxRequests, logger: logger}
}

// MaxRequests returns the configured cycle length.
func (a *Accumulator) MaxRequests() int { return a.maxRequests }

// Accumulate records one fetch for class. When the class has already seen
// MaxRequests fetches the pending list is cleared before the batch is
// appended and the counter restarts at 1. An empty batch changes nothing.
func (a *Accumulator) Accumulate(ctx context.Context, class string, quests []Quest) error {
	class = NormalizeClass(class)
	if len(quests) == 0 {
		a.logger.Warn("ignoring empty quest batch", zap.String("class", class))
		return nil
	}
	payload := make([]string, 0, len(quests))
	for _, q := range quests {
		b, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode quest %s: %w", q.ID, err)
		}
		payload = append(payload, string(b))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.remember(class)

	count, err := a.requestCount(ctx, class)
	if err != nil {
		return err
	}
	count++
	if count > a.maxRequests {
		if err := a.c.Del(ctx, pendingKey(class)); err != nil {
			return fmt.Errorf("clear pending %s: %w", class, err)
		}
		a.logger.Info("accumulation cycle restarted", zap.String("class", class))
		count = 1
	}
	if err := a.c.RPush(ctx, pendingKey(class), payload...); err != nil {
		return fmt.Errorf("append pending %s: %w", class, err)
	}
	if err := a.c.Set(ctx, requestsKey(class), strconv.Itoa(count), 0); err != nil {
		return fmt.Errorf("store request count %s: %w", class, err)
	}
	a.logger.Debug("quests accumulated",
		zap.String("class", class),
		zap.Int("added", len(quests)),
		zap.Int("request", count),
		zap.Int("max_requests", a.maxRequests))
	return nil
}

// Pending returns a copy of the pending quests for class in arrival order.
func (a *Accumulator) Pending(ctx context.Context, class string) ([]Quest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending(ctx, NormalizeClass(class))
}

// Take moves the pending quests for class out of the cache. The request
// counter is unaffected.
func (a *Accumulator) Take(ctx context.Context, class string) ([]Quest, error) {
	class = NormalizeClass(class)
	a.mu.Lock()
	defer a.mu.Unlock()
	quests, err := a.pending(ctx, class)
	if err != nil || len(quests) == 0 {
		return quests, err
	}
	if err := a.c.Del(ctx, pendingKey(class)); err != nil {
		return nil, fmt.Errorf("drain pending %s: %w", class, err)
	}
	return quests, nil
}

// Remove drops one pending quest by id and reports whether it was present.
func (a *Accumulator) Remove(ctx context.Context, class, questID string) (bool, error) {
	class = NormalizeClass(class)
	a.mu.Lock()
	defer a.mu.Unlock()
	quests, err := a.pending(ctx, class)
	if err != nil {
		return false, err
	}
	i := slices.IndexFunc(quests, func(q Quest) bool { return q.ID == questID })
	if i < 0 {
		return false, nil
	}
	rest := slices.Delete(quests, i, i+1)
	if err := a.c.Del(ctx, pendingKey(class)); err != nil {
		return false, err
	}
	for _, q := range rest {
		b, _ := json.Marshal(q)
		if err := a.c.RPush(ctx, pendingKey(class), string(b)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RequestCount returns the fetches recorded for class in the current cycle.
func (a *Accumulator) RequestCount(ctx context.Context, class string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requestCount(ctx, NormalizeClass(class))
}

// ShouldClearOnNextFetch reports whether the next Accumulate for class
// starts a new cycle.
func (a *Accumulator) ShouldClearOnNextFetch(ctx context.Context, class string) (bool, error) {
	n, err := a.RequestCount(ctx, class)
	return n >= a.maxRequests, err
}

// Clear forgets both the pending list and the counter of class.
func (a *Accumulator) Clear(ctx context.Context, class string) error {
	class = NormalizeClass(class)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.c.Del(ctx, pendingKey(class), requestsKey(class))
}

// Stats reports every class seen by this process, sorted by class.
func (a *Accumulator) Stats(ctx context.Context, extra ...string) ([]AccumulationStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	classes := slices.Clone(a.classes)
	for _, c := range extra {
		if c = NormalizeClass(c); !slices.Contains(classes, c) {
			classes = append(classes, c)
		}
	}
	slices.Sort(classes)

	out := make([]AccumulationStats, 0, len(classes))
	for _, class := range classes {
		n, err := a.c.LLen(ctx, pendingKey(class))
		if err != nil {
			return nil, err
		}
		count, err := a.requestCount(ctx, class)
		if err != nil {
			return nil, err
		}
		out = append(out, AccumulationStats{
			Class:       class,
			Pending:     int(n),
			Requests:    count,
			MaxRequests: a.maxRequests,
			ClearOnNext: count >= a.maxRequests,
		})
	}
	return out, nil
}

func (a *Accumulator) remember(class string) {
	if !slices.Contains(a.classes, class) {
		a.classes = append(a.classes, class)
	}
}

func (a *Accumulator) requestCount(ctx context.Context, class string) (int, error) {
	v, err := a.c.Get(ctx, requestsKey(class))
	if cache.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read request count %s: %w", class, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		a.logger.Warn("corrupt request counter, treating as zero",
			zap.String("class", class), zap.String("value", v))
		return 0, nil
	}
	return n, nil
}

func (a *Accumulator) pending(ctx context.Context, class string) ([]Quest, error) {
	raw, err := a.c.LRange(ctx, pendingKey(class), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read pending %s: %w", class, err)
	}
	out := make([]Quest, 0, len(raw))
	for _, s := range raw {
		var q Quest
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			a.logger.Warn("dropping undecodable pending quest",
				zap.String("class", class), zap.Error(err))
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
