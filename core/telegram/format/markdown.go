package format

import "regexp"

var mdV1Re = regexp.MustCompile("([_*\\[`])")

// EscapeMarkdown escapes Markdown (v1) control characters in user-supplied
// text so tenant names and free-form input cannot break a reply.
func EscapeMarkdown(text string) string {
	return mdV1Re.ReplaceAllString(text, `\$1`)
}
