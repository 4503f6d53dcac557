package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questboard/api/rest"
	"github.com/kasuganosora/questboard/api/sse"
	"github.com/kasuganosora/questboard/audit"
	"github.com/kasuganosora/questboard/cache"
	"github.com/kasuganosora/questboard/config"
	dbadapter "github.com/kasuganosora/questboard/db"
	"github.com/kasuganosora/questboard/game/board"
	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/game/world"
	"github.com/kasuganosora/questboard/generator"
	mw "github.com/kasuganosora/questboard/middleware"
	"github.com/kasuganosora/questboard/model"
	"github.com/kasuganosora/questboard/plugin/hook"
	"github.com/kasuganosora/questboard/resource"
	"github.com/kasuganosora/questboard/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const defaultBoardID = "town_square"

// app holds every long-lived component of a running server.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *gorm.DB
	cache    cache.Cache
	pubsub   cache.PubSub
	audit    *audit.Service
	hooks    *hook.HookCenter
	content  quest.ContentSource
	svc      *quest.Service
	tracker  *quest.Tracker
	accum    *quest.Accumulator
	loop     *world.Loop
	boards   *board.Manager
	fetcher  *generator.Fetcher
	sched    *scheduler.Scheduler
	events   *sse.Handler
	stopCh   chan struct{}
	feedStop context.CancelFunc
	feedDone <-chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, stopCh: make(chan struct{})}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// ---- Database ----
	a.db, err = dbadapter.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	if err = model.AutoMigrate(a.db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	a.audit = audit.New(a.db, logger)

	// ---- Cache / PubSub ----
	if a.cache, err = cache.NewCache(cfg.Cache); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	if a.pubsub, err = cache.NewPubSub(cfg.Cache); err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Catalog ----
	a.content = resource.QuestDir{Dir: cfg.Quest.ContentDir, Logger: logger}
	catalog := quest.NewCatalog(logger)
	if err := catalog.LoadFromContent(a.content); err != nil {
		// An empty catalog still serves generated content.
		logger.Warn("static quest content not loaded", zap.Error(err))
	}

	// ---- Tickets ----
	a.hooks = hook.NewHookCenter()
	chars := quest.NewCharacters(a.db, logger)
	a.svc = quest.NewService(quest.Deps{
		Store:   quest.NewGormStore(a.db),
		Catalog: catalog,
		Players: chars,
		Rewards: chars,
		Replica: quest.NewReplica(a.cache, a.pubsub),
		Stats:   a.cache,
		Hooks:   a.hooks,
		Audit:   a.audit,
	}, quest.Config{MaxActiveTickets: cfg.Quest.MaxActiveTickets}, logger)
	a.tracker = quest.NewTracker(a.svc, logger)
	a.accum = quest.NewAccumulator(a.cache, cfg.Quest.MaxRequests, logger)

	// ---- Authoritative loop and boards ----
	a.loop = world.NewLoop(cfg.Quest.LoopQueueSize, logger)
	go a.loop.Run()

	a.boards = board.NewManager(board.Deps{
		Loop:        a.loop,
		Service:     a.svc,
		Accumulator: a.accum,
		Store:       board.NewStore(a.db),
		Hooks:       a.hooks,
		Classes:     cfg.Generator.Classes,
		Options:     []board.Option{board.WithOfferTTL(cfg.Quest.OfferTTL)},
	}, logger)
	for _, bc := range boardConfigs(cfg.Quest) {
		if err = a.boards.Register(ctx, bc.ID, bc.Class, bc.Capacity); err != nil {
			return nil, fmt.Errorf("register board %s: %w", bc.ID, err)
		}
	}

	// ---- Action feed ----
	feedCtx, cancel := context.WithCancel(context.Background())
	a.feedStop = cancel
	if a.feedDone, err = quest.NewFeed(a.pubsub, a.tracker, logger).Start(feedCtx); err != nil {
		return nil, fmt.Errorf("action feed: %w", err)
	}

	// ---- Scheduler and generator ----
	a.sched = scheduler.New(logger)
	if cfg.Quest.RefreshInterval > 0 {
		a.sched.Every("board.refresh", cfg.Quest.RefreshInterval, func() {
			rctx, cancel := context.WithTimeout(context.Background(), cfg.Quest.RefreshInterval)
			defer cancel()
			if _, err := a.boards.RefreshAll(rctx); err != nil {
				logger.Warn("scheduled board refresh failed", zap.Error(err))
			}
		})
	}
	if cfg.Generator.BaseURL != "" {
		a.fetcher = generator.NewFetcher(generator.FetcherDeps{
			Source:      generator.NewClient(cfg.Generator, logger),
			Loop:        a.loop,
			Accumulator: a.accum,
			Boards:      a.boards,
		}, cfg.Generator.Classes, cfg.Generator.Timeout, logger)
		a.fetcher.Schedule(a.sched, cfg.Generator.FetchInterval, cfg.Generator.HealthInterval)
		go a.fetcher.CheckHealth(feedCtx)
	} else {
		logger.Info("generator.base_url not set, serving static quests only")
	}

	a.events = sse.NewHandler(a.pubsub, cfg.Security, logger)
	a.registerHooks()
	return a, nil
}

// registerHooks announces board regenerations to connected players.
func (a *app) registerHooks() {
	a.hooks.Register(hook.OnBoardRegenerate, 100, "sse.announce", func(ctx context.Context, _ string, data any) (any, error) {
		ev, ok := data.(board.Event)
		if !ok || ev.Placed == 0 {
			return data, nil
		}
		msg := fmt.Sprintf(`{"board_id":%q,"placed":%d}`, ev.BoardID, ev.Placed)
		if err := a.events.Announce(ctx, msg); err != nil {
			a.logger.Debug("board announce failed", zap.Error(err))
		}
		return data, nil
	})
}

// Router builds the gin engine serving the REST API and the event stream.
func (a *app) Router() *gin.Engine {
	cfg := a.cfg
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(a.logger), mw.Recovery(a.logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst, a.stopCh))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "quests": a.svc.Catalog().TotalCount()})
	})
	r.GET("/sse", a.events.ServeSSE)

	rest.Register(r.Group("/api"), rest.Handlers{
		Boards:  rest.NewBoardHandler(a.boards, a.logger),
		Tickets: rest.NewTicketHandler(a.svc, a.logger),
		Admin: rest.NewAdminHandler(rest.AdminDeps{
			DB:          a.db,
			Loop:        a.loop,
			Service:     a.svc,
			Tracker:     a.tracker,
			Boards:      a.boards,
			Content:     a.content,
			Accumulator: a.accum,
			Fetcher:     a.fetcher,
			Scheduler:   a.sched,
			Audit:       a.audit,
			Security:    cfg.Security,
		}, a.logger),
	},
		mw.Auth(cfg.Security),
		mw.IPWhitelist(cfg.Server.AdminAllow, a.logger),
		mw.AdminAuth(cfg.Server, a.logger),
	)
	return r
}

// Close stops background work in dependency order. It is safe on a
// partially built app.
func (a *app) Close() {
	if a.fetcher != nil {
		a.fetcher.Stop()
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.feedStop != nil {
		a.feedStop()
		if a.feedDone != nil {
			<-a.feedDone
		}
	}
	if a.loop != nil {
		a.loop.Stop()
	}
	if a.audit != nil {
		a.audit.Stop()
	}
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
}

// boardConfigs returns the configured boards, defaulting capacities, or a
// single class-agnostic board when none are configured.
func boardConfigs(qc config.QuestConfig) []config.BoardConfig {
	boards := qc.Boards
	if len(boards) == 0 {
		boards = []config.BoardConfig{{ID: defaultBoardID}}
	}
	out := make([]config.BoardConfig, len(boards))
	for i, b := range boards {
		if b.Capacity <= 0 {
			b.Capacity = qc.BoardCapacity
		}
		out[i] = b
	}
	return out
}
