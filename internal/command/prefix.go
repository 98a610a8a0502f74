package command

import (
	"strings"
	"unicode"
)

// StripPrefix returns the text after the bot trigger word. ok is false when the
// message is not addressed to the bot. The prefix match ignores case and must be
// followed by whitespace or the end of the message.
func StripPrefix(prefix, text string) (rest string, ok bool) {
	text = strings.TrimSpace(text)
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || len(text) < len(prefix) || !strings.EqualFold(text[:len(prefix)], prefix) {
		return "", false
	}
	rest = text[len(prefix):]
	if rest != "" {
		r := []rune(rest)[0]
		if !unicode.IsSpace(r) {
			return "", false
		}
	}
	return strings.TrimSpace(rest), true
}
