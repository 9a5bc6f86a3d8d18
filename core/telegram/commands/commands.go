package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is one slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
