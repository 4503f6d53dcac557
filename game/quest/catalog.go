package quest

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ContentSource supplies the static quest definitions.
type ContentSource interface {
	LoadQuests() ([]Quest, error)
}

// ContentFunc adapts a function to ContentSource.
type ContentFunc func() ([]Quest, error)

func (f ContentFunc) LoadQuests() ([]Quest, error) { return f() }

// maxGeneratedPerClass bounds the generated overlay; the oldest quests of
// a class are evicted first.
const maxGeneratedPerClass = 256

// layer holds quests keyed by normalised class, each class list ordered by
// insertion.
type layer map[string][]Quest

func (l layer) clone() layer {
	out := make(layer, len(l))
	for k, v := range l {
		out[k] = slices.Clone(v)
	}
	return out
}

// put inserts or replaces q in its class list and reports whether an
// entry with the same id was replaced.
func (l layer) put(q Quest) bool {
	class := NormalizeClass(q.Class)
	list := l[class]
	if i := slices.IndexFunc(list, func(e Quest) bool { return e.ID == q.ID }); i >= 0 {
		list[i] = q
		return true
	}
	l[class] = append(list, q)
	return false
}

type catalogSnapshot struct {
	static    layer
	generated layer
}

func (s *catalogSnapshot) forClass(class string) []Quest {
	var out []Quest
	seen := make(map[string]bool)
	add := func(list []Quest) {
		for _, q := range list {
			if !seen[q.ID] {
				seen[q.ID] = true
				out = append(out, q)
			}
		}
	}
	// Static content shadows generated quests with the same id.
	for _, l := range []layer{s.static, s.generated} {
		add(l[class])
		if class != ClassAny {
			add(l[ClassAny])
		}
	}
	return out
}

// Catalog is the read-mostly set of quest definitions. Readers load an
// immutable snapshot; writers build a new one and swap the pointer.
type Catalog struct {
	snap   atomic.Pointer[catalogSnapshot]
	mu     sync.Mutex // serialises writers
	logger *zap.Logger
}

// NewCatalog returns an empty catalog.
func NewCatalog(logger *zap.Logger) *Catalog {
	c := &Catalog{logger: logger}
	c.snap.Store(&catalogSnapshot{static: layer{}, generated: layer{}})
	return c
}

// LoadFromContent replaces the static layer with src's quests. Invalid
// quests are skipped and duplicate ids within a class resolve to the last
// one loaded; both are logged. The generated overlay is kept.
func (c *Catalog) LoadFromContent(src ContentSource) error {
	quests, err := src.LoadQuests()
	if err != nil {
		return fmt.Errorf("load quest content: %w", err)
	}
	static := layer{}
	for _, q := range quests {
		if err := q.Validate(); err != nil {
			c.logger.Warn("skipping invalid quest", zap.Error(err))
			continue
		}
		q.Class = NormalizeClass(q.Class)
		if static.put(q) {
			c.logger.Warn("duplicate quest id, last loaded wins",
				zap.String("quest_id", q.ID), zap.String("class", q.Class))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	c.snap.Store(&catalogSnapshot{static: static, generated: old.generated})
	c.logger.Info("quest catalog loaded",
		zap.Int("quests", countLayer(static)), zap.Int("classes", len(static)))
	return nil
}

// Augment adds externally generated quests to the overlay and returns how
// many were accepted.
func (c *Catalog) Augment(quests []Quest) int {
	if len(quests) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	gen := old.generated.clone()
	added := 0
	for _, q := range quests {
		if err := q.Validate(); err != nil {
			c.logger.Warn("skipping invalid generated quest", zap.Error(err))
			continue
		}
		q.Class = NormalizeClass(q.Class)
		gen.put(q)
		added++
		if list := gen[q.Class]; len(list) > maxGeneratedPerClass {
			gen[q.Class] = slices.Clone(list[len(list)-maxGeneratedPerClass:])
		}
	}
	c.snap.Store(&catalogSnapshot{static: old.static, generated: gen})
	return added
}

// QuestsForClass returns the quests open to class: those restricted to it
// plus the class-agnostic ones.
func (c *Catalog) QuestsForClass(class string) []Quest {
	return c.snap.Load().forClass(NormalizeClass(class))
}

// CountForClass is len(QuestsForClass(class)).
func (c *Catalog) CountForClass(class string) int {
	return len(c.QuestsForClass(class))
}

// All returns every quest once, static content first and classes in sorted
// order. An id present in several classes or layers is reported at its
// first position only.
func (c *Catalog) All() []Quest {
	var out []Quest
	c.snap.Load().walk(func(q Quest) bool {
		out = append(out, q)
		return true
	})
	return out
}

// TotalCount returns the number of distinct quest ids across all classes.
func (c *Catalog) TotalCount() int {
	n := 0
	c.snap.Load().walk(func(Quest) bool { n++; return true })
	return n
}

// Get looks a quest up by id. When the id exists in several classes the
// one All lists first is returned.
func (c *Catalog) Get(id string) (Quest, bool) {
	var found Quest
	ok := false
	c.snap.Load().walk(func(q Quest) bool {
		if q.ID == id {
			found, ok = q, true
			return false
		}
		return true
	})
	return found, ok
}

// Classes lists the classes with at least one quest, sorted.
func (c *Catalog) Classes() []string {
	return classesOf(c.snap.Load())
}

func classesOf(s *catalogSnapshot) []string {
	var out []string
	for _, l := range []layer{s.static, s.generated} {
		for class, list := range l {
			if len(list) > 0 && !slices.Contains(out, class) {
				out = append(out, class)
			}
		}
	}
	slices.Sort(out)
	return out
}

// walk visits each distinct quest id once in a fixed order until fn
// returns false.
func (s *catalogSnapshot) walk(fn func(Quest) bool) {
	classes := classesOf(s)
	seen := make(map[string]bool)
	for _, l := range []layer{s.static, s.generated} {
		for _, class := range classes {
			for _, q := range l[class] {
				if seen[q.ID] {
					continue
				}
				seen[q.ID] = true
				if !fn(q) {
					return
				}
			}
		}
	}
}

func countLayer(l layer) int {
	n := 0
	for _, list := range l {
		n += len(list)
	}
	return n
}
