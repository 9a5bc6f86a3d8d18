// Package callbacks decodes telebot's \f<unique>|<payload> callback data
// encoding shared by every inline keyboard in the bot.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits a callback into its action key and payload. cb.Unique is
// preferred; generic OnCallback handlers only get the raw Data form.
func Parse(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.SplitN(raw, "|", 2)
	key = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		payload = parts[1]
	}
	return key, payload
}

// Key returns the action key of the pending callback, if any.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the payload of the pending callback, if any.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}
