// Package generator pulls externally generated quests and feeds them to
// the accumulation cache.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questboard/config"
	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/resource"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults applied to generated drafts.
const (
	DraftLevel      = 1
	DraftTimeLimit  = 60
	DraftExperience = 100
	maxBodyBytes    = 4 << 20
)

// ErrUnavailable wraps every failed fetch; it is also a
// quest.ErrContentUnavailable.
var ErrUnavailable = fmt.Errorf("generator unavailable: %w", quest.ErrContentUnavailable)

// Source produces quests for a class.
type Source interface {
	FetchQuests(ctx context.Context, class string) ([]quest.Quest, error)
}

// Client talks to the quest generator service over HTTP.
type Client struct {
	base    string
	count   int
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg config.GeneratorConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	count := cfg.QuestsPerFetch
	if count <= 0 {
		count = 5
	}
	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	burst := max(cfg.RateLimitBurst, 1)
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		count:   count,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

type questsResponse struct {
	Quests []resource.QuestDef `json:"quests"`
}

// FetchQuests requests a batch of drafts for class and normalises them.
// Drafts that still fail validation are dropped.
func (c *Client) FetchQuests(ctx context.Context, class string) ([]quest.Quest, error) {
	class = quest.NormalizeClass(class)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	u := fmt.Sprintf("%s/quests/%s?quest_count=%d", c.base, url.PathEscape(class), c.count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out questsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}

	quests := make([]quest.Quest, 0, len(out.Quests))
	for _, d := range out.Quests {
		q := normalizeDraft(d, class)
		if err := q.Validate(); err != nil {
			c.logger.Warn("dropping invalid draft", zap.String("class", class), zap.Error(err))
			continue
		}
		quests = append(quests, q)
	}
	c.logger.Info("quests fetched",
		zap.String("class", class),
		zap.Int("received", len(out.Quests)),
		zap.Int("accepted", len(quests)),
		zap.Duration("latency", time.Since(start)))
	return quests, nil
}

// Ping reports whether the generator answers its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// normalizeDraft fills the fields generators tend to omit. Drafts always
// belong to the class they were requested for.
func normalizeDraft(d resource.QuestDef, class string) quest.Quest {
	if d.Level == nil && d.MinLevel == nil {
		lvl := DraftLevel
		d.Level = &lvl
	}
	if d.TimeLimit == nil && d.TimeLimitV1 == nil {
		tl := DraftTimeLimit
		d.TimeLimit = &tl
	}
	if d.Reward.Type == "" {
		d.Reward.Type = string(quest.RewardExperience)
	}
	q := d.Quest()
	q.Class = class
	if q.ID == "" {
		q.ID = class + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	if q.Title == "" {
		q.Title = q.ID
	}
	if q.Reward.Type == quest.RewardExperience && q.Reward.Amount <= 0 {
		q.Reward.Amount = DraftExperience
	}
	return q
}

// IsUnavailable reports whether err came from a failed fetch.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
