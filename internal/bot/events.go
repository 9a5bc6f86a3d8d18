// Package bot binds the flow engine to Telegram: it classifies inbound
// updates into engine events, renders prompts and keyboards, and registers
// the command and callback handlers.
package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/idobetesh/papertrail/core/telegram/callbacks"
	"github.com/idobetesh/papertrail/internal/domain"
)

func chatUser(c tele.Context) (chatID, userID int64) {
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return chatID, userID
}

// messageEvent classifies a free-text update.
func messageEvent(c tele.Context) domain.Event {
	chatID, userID := chatUser(c)
	return domain.Event{
		Kind:   domain.EventMessage,
		ChatID: chatID,
		UserID: userID,
		Text:   c.Text(),
	}
}

// callbackEvent classifies a button press. The transport-assigned callback
// query id doubles as the idempotency key.
func callbackEvent(c tele.Context) domain.Event {
	chatID, userID := chatUser(c)
	ev := domain.Event{
		Kind:   domain.EventCallback,
		ChatID: chatID,
		UserID: userID,
	}
	if cb := c.Callback(); cb != nil {
		ev.EventID = cb.ID
		ev.Action, ev.Value = callbacks.Parse(cb)
	}
	return ev
}

// startEvent carries the identity of a slash-command sender.
func startEvent(c tele.Context) domain.Event {
	chatID, userID := chatUser(c)
	return domain.Event{
		Kind:   domain.EventStart,
		ChatID: chatID,
		UserID: userID,
		Text:   c.Text(),
	}
}
