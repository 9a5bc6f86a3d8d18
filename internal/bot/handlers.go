package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/idobetesh/papertrail/core/logger"
	tg "github.com/idobetesh/papertrail/core/telegram"
	"github.com/idobetesh/papertrail/core/telegram/commands"
	tghelpers "github.com/idobetesh/papertrail/core/telegram/helpers"
	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/engine"
	"github.com/idobetesh/papertrail/internal/flow"
)

// TenantDirectory stores tenants collected by the onboarding flow and
// feeds the receipt wizard's tenant picker.
type TenantDirectory interface {
	Add(ctx context.Context, t *domain.Tenant) error
	Names(ctx context.Context, chatID int64) ([]string, error)
}

// Options tunes the handlers.
type Options struct {
	// SeedTenants are always offered in the receipt picker, on top of the
	// onboarded ones.
	SeedTenants []string
	// PurgeBatch bounds one /purge sweep.
	PurgeBatch int
}

// Bot carries the engine and its chat-facing dependencies.
type Bot struct {
	eng  *engine.Engine
	dir  TenantDirectory
	opts Options
}

// New builds the handler set.
func New(eng *engine.Engine, dir TenantDirectory, opts Options) *Bot {
	if opts.PurgeBatch <= 0 {
		opts.PurgeBatch = 500
	}
	return &Bot{eng: eng, dir: dir, opts: opts}
}

// Register wires all commands and callbacks into the registry.
func (b *Bot) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     b.handleHelp,
		Description: "What this bot does",
		Aliases:     []string{"help"},
	})
	reg.RegisterCommand("/receipt", commands.Command{
		Handler:     b.startFlow(domain.FlowDocument),
		Description: "Issue a rent receipt",
	})
	reg.RegisterCommand("/report", commands.Command{
		Handler:     b.startFlow(domain.FlowReport),
		Description: "Generate a period report",
	})
	reg.RegisterCommand("/tenant", commands.Command{
		Handler:     b.startFlow(domain.FlowOnboarding),
		Description: "Onboard a new tenant",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     b.handleStatus,
		Description: "Show the wizard in progress",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     b.handleCancel,
		Description: "Abort the wizard in progress",
	})
	reg.RegisterCommand("/purge", commands.Command{
		Handler:     b.handlePurge,
		Description: "Sweep expired sessions",
		AdminOnly:   true,
		Hidden:      true,
	})

	for _, key := range []string{
		domain.ActionSelectTenant,
		domain.ActionSelectType,
		domain.ActionSelectFormat,
		domain.ActionConfirm,
		domain.ActionSkip,
		domain.ActionCancel,
	} {
		_ = reg.RegisterCallback(key, b.handleCallback)
	}

	reg.SetTextFallback(b.handleHelp)
}

func (b *Bot) handleHelp(c tele.Context) error {
	return tghelpers.SendMD(c, helpText)
}

func (b *Bot) startFlow(kind domain.FlowKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		return b.eng.Start(ctx, kind, startEvent(c), b.effects(c))
	}
}

func (b *Bot) handleCallback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return b.eng.Handle(ctx, callbackEvent(c), b.effects(c))
}

func (b *Bot) handleCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chatID, userID := chatUser(c)
	err := b.eng.Cancel(ctx, chatID, userID, b.effects(c))
	if errors.Is(err, domain.ErrSessionNotFound) {
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	return err
}

func (b *Bot) handleStatus(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chatID, userID := chatUser(c)
	s, err := b.eng.Status(ctx, chatID, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return tghelpers.SendText(c, "No wizard in progress. Try /receipt, /report or /tenant.")
	}
	if err != nil {
		return err
	}
	return tghelpers.SendMD(c, statusText(s))
}

func (b *Bot) handlePurge(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	sessions, markers, err := b.eng.Purge(ctx, b.opts.PurgeBatch)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c,
		fmt.Sprintf("Purged %d sessions and %d callback markers.", sessions, markers))
}

// InProgress reports whether the sender has an active wizard; part of the
// text routing contract.
func (b *Bot) InProgress(c tele.Context) bool {
	ctx := tghelpers.BuildContext(c)
	chatID, userID := chatUser(c)
	_, err := b.eng.Status(ctx, chatID, userID)
	return err == nil
}

// HandleText feeds a free-text update to the active wizard.
func (b *Bot) HandleText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	err := b.eng.Handle(ctx, messageEvent(c), b.effects(c))
	if errors.Is(err, domain.ErrSessionNotFound) {
		// The wizard vanished between routing and handling.
		return tghelpers.SendText(c, expiredText())
	}
	return err
}

// tenantNames merges seeded tenants with the chat's onboarded ones.
func (b *Bot) tenantNames(ctx context.Context, chatID int64) []string {
	names := append([]string(nil), b.opts.SeedTenants...)
	if b.dir == nil {
		return names
	}
	stored, err := b.dir.Names(ctx, chatID)
	if err != nil {
		logger.Warn(ctx, "bot", "tenant_list_failed",
			slog.Int64("chat_id", chatID),
			slog.Any("err", err))
		return names
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, n := range stored {
		if _, dup := seen[n]; !dup {
			names = append(names, n)
		}
	}
	return names
}

// onCompleted records flow side effects that outlive the session, namely
// adding an onboarded tenant to the directory.
func (b *Bot) onCompleted(ctx context.Context, s *domain.Session) {
	if s.Flow != domain.FlowOnboarding || b.dir == nil {
		return
	}
	t := &domain.Tenant{
		ChatID: s.ChatID,
		Name:   s.Fields[flow.FieldTenantName],
		Unit:   s.Fields[flow.FieldUnit],
		Rent:   s.Fields[flow.FieldRent],
		Email:  s.Fields[flow.FieldEmail],
	}
	if err := b.dir.Add(ctx, t); err != nil {
		logger.Error(ctx, "bot", "tenant_save_failed",
			slog.Int64("chat_id", s.ChatID),
			slog.Any("err", err))
	}
}
