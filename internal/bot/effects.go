package bot

import (
	"bytes"
	"context"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/idobetesh/papertrail/core/telegram/helpers"
	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/engine"
)

// chatEffects implements engine.Effects against the inbound update's chat.
type chatEffects struct {
	c tele.Context
	b *Bot
}

func (b *Bot) effects(c tele.Context) engine.Effects {
	return &chatEffects{c: c, b: b}
}

func (fx *chatEffects) SendPrompt(ctx context.Context, s *domain.Session) error {
	text, kb := prompt(s, fx.b.tenantNames(ctx, s.ChatID))
	if kb != nil {
		return tghelpers.SendMD(fx.c, text, kb)
	}
	return tghelpers.SendMD(fx.c, text)
}

func (fx *chatEffects) SendRejection(_ context.Context, s *domain.Session, reason string) error {
	return tghelpers.SendText(fx.c, rejectionText(s, reason))
}

func (fx *chatEffects) SendExpired(context.Context) error {
	return tghelpers.SendText(fx.c, expiredText())
}

func (fx *chatEffects) SendCancelled(_ context.Context, kind domain.FlowKind) error {
	return tghelpers.SendText(fx.c, cancelledText(kind))
}

func (fx *chatEffects) SendCompleted(ctx context.Context, s *domain.Session, art *engine.Artifact) error {
	fx.b.onCompleted(ctx, s)
	if art == nil {
		return tghelpers.SendText(fx.c, completedText(s.Flow))
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(art.Content)),
		FileName: art.Name,
		MIME:     art.MIME,
		Caption:  art.Caption,
	}
	return tghelpers.SendDocument(fx.c, doc)
}

func (fx *chatEffects) SendFailure(_ context.Context, kind domain.FlowKind) error {
	return tghelpers.SendText(fx.c, failureText(kind))
}

func (fx *chatEffects) SendRateLimited(_ context.Context, dec domain.RateDecision) error {
	return tghelpers.SendText(fx.c, rateLimitedText(dec))
}

func (fx *chatEffects) AckCallback(context.Context) error {
	return tghelpers.Respond(fx.c)
}
