package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is a convenience wrapper for inline button properties.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

const cancelButtonText = "❌ Cancel"

// Inline builds an inline keyboard from rows of InlineBtn.
func Inline(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// InlineColumn places each button on its own row.
func InlineColumn(buttons ...InlineBtn) *tele.ReplyMarkup {
	rows := make([][]InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineBtn{b})
	}
	return Inline(rows...)
}

// WithCancel appends a cancel row to an existing inline keyboard.
func WithCancel(markup *tele.ReplyMarkup, action string) *tele.ReplyMarkup {
	if markup == nil {
		markup = &tele.ReplyMarkup{}
	}
	btn := markup.Data(cancelButtonText, action, "cancel")
	markup.InlineKeyboard = append(markup.InlineKeyboard, []tele.InlineButton{*btn.Inline()})
	return markup
}

// CancelOnly is an inline keyboard with a single cancel button.
func CancelOnly(action string) *tele.ReplyMarkup {
	return WithCancel(&tele.ReplyMarkup{}, action)
}
