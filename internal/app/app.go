// Package app wires papertrail together: configuration, storage backend,
// flow engine, Telegram handlers and the background cleanup loop.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/idobetesh/papertrail/core/bootstrap"
	"github.com/idobetesh/papertrail/core/logger"
	tg "github.com/idobetesh/papertrail/core/telegram"
	"github.com/idobetesh/papertrail/core/telegram/router"
	"github.com/idobetesh/papertrail/internal/artifact"
	"github.com/idobetesh/papertrail/internal/bot"
	"github.com/idobetesh/papertrail/internal/engine"
	memstore "github.com/idobetesh/papertrail/internal/storage/memory"
	pgstore "github.com/idobetesh/papertrail/internal/storage/postgres"
)

// App is the bootstrapped application.
type App struct {
	cfg *Config
	db  *sqlx.DB
	eng *engine.Engine
	bot *bot.Bot
	reg *tg.Registry

	purgeStop context.CancelFunc
	purgeDone chan struct{}
}

// Bootstrap initializes infrastructure and wires the engine and handlers.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:       &cfg.Core,
		Database:     cfg.Database,
		SkipDatabase: cfg.Storage.Mode != StoragePostgres,
	})
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Flows.Location()
	if err != nil {
		return nil, err
	}

	var (
		repo  engine.SessionRepository
		dedup engine.Deduplicator
		gate  engine.RateGate
		dir   bot.TenantDirectory
	)
	switch cfg.Storage.Mode {
	case StoragePostgres:
		repo = pgstore.NewSessionStore(res.DB)
		dedup = pgstore.NewDedupStore(res.DB)
		gate = pgstore.NewRateGate(res.DB, cfg.Flows.DailyLimit, loc)
		dir = pgstore.NewTenantStore(res.DB)
	default:
		repo = memstore.NewSessionStore()
		dedup = memstore.NewDedupStore()
		gate = memstore.NewRateGate(cfg.Flows.DailyLimit, loc)
		dir = memstore.NewTenantStore()
	}

	eng := engine.New(repo, dedup, gate,
		artifact.NewTextGenerator(cfg.Business.Name),
		engine.Config{
			SessionTTL: cfg.Flows.SessionTTL(),
			DedupTTL:   cfg.Flows.DedupTTL(),
		})

	b := bot.New(eng, dir, bot.Options{
		SeedTenants: cfg.Business.SeedTenants,
		PurgeBatch:  cfg.Flows.PurgeBatch,
	})

	reg := tg.NewRegistry()
	b.Register(reg)

	logger.Info(logger.Background(), "app", "wired",
		slog.String("storage", cfg.Storage.Mode),
		slog.Int("daily_limit", cfg.Flows.DailyLimit),
		slog.String("quota_tz", cfg.Flows.QuotaTimezone),
	)

	return &App{
		cfg: cfg,
		db:  res.DB,
		eng: eng,
		bot: b,
		reg: reg,
	}, nil
}

// TelegramRunOptions assembles middlewares and routes for the bot runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.bot, a.reg, router.TextOptions{})...)

	return tg.RunOptions{
		Config:      &a.cfg.Core,
		Registry:    a.reg,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Core, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, _ tg.Runtime) error {
			a.startPurgeLoop(ctx)
			return nil
		},
		OnStop: func(context.Context, tg.Runtime) error {
			a.stopPurgeLoop()
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}

// startPurgeLoop sweeps expired sessions and stale callback markers on a
// fixed cadence until shutdown.
func (a *App) startPurgeLoop(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	a.purgeStop = cancel
	a.purgeDone = make(chan struct{})

	interval := a.cfg.Flows.PurgeInterval()
	batch := a.cfg.Flows.PurgeBatch

	go func() {
		defer close(a.purgeDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				sessions, markers, err := a.eng.Purge(ctx, batch)
				if err != nil {
					logger.Warn(ctx, "app", "purge_failed",
						slog.Any("err", err))
					continue
				}
				if sessions == 0 && markers == 0 {
					continue
				}
				logger.Info(ctx, "app", "purge_sweep",
					slog.Int("sessions", sessions),
					slog.Int("markers", markers),
					slog.Duration("duration", logger.RoundMS(time.Since(start))),
				)
			}
		}
	}()
}

func (a *App) stopPurgeLoop() {
	if a.purgeStop == nil {
		return
	}
	a.purgeStop()
	<-a.purgeDone
}
