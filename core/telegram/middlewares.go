package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/idobetesh/papertrail/core/config"
	"github.com/idobetesh/papertrail/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared global middleware chain.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.Recover},
	}

	if cfg != nil {
		interval := time.Duration(cfg.FloodLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.FloodLimit.ExcludeUpdates))
			for _, t := range cfg.FloodLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			opts := middleware.FloodLimitOptions{
				Interval: interval,
				Exclude:  ex,
			}
			if onLimited != nil {
				opts.OnLimited = onLimited
			}
			mws = append(mws, Middleware{
				Name: "flood_limit",
				Use:  middleware.FloodLimit(opts),
			})
		}
	}

	mws = append(mws,
		Middleware{Name: "logger", Use: middleware.Logger},
		Middleware{Name: "metrics", Use: middleware.MessageMetrics},
	)

	return mws
}
