package router

import (
	"time"

	tg "github.com/idobetesh/papertrail/core/telegram"
	"github.com/idobetesh/papertrail/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversation is the minimal interface a multi-step wizard engine exposes
// to text routing: free text belongs to the wizard while one is in
// progress for the sender.
type Conversation interface {
	InProgress(c tele.Context) bool
	HandleText(c tele.Context) error
}

// TextOptions controls fallback behaviour for unrouted text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the OnText handler: active wizard first, then command
// lookup for bare command words, then the registry fallback.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if conv != nil && conv.InProgress(c) {
			return handleWithSummary(c, "wizard", start, func() error {
				return conv.HandleText(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.Recover(middleware.Logger(handler)),
		},
	}
}
