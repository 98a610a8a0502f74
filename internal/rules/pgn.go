package rules

import (
	"fmt"
	"strings"
	"time"
)

// Headers are the PGN tag pairs written ahead of the move text.
type Headers struct {
	Event       string
	Site        string
	Date        time.Time
	White       string
	Black       string
	Termination string
}

// PGN serializes the game for analysis services. result overrides the engine outcome
// when the game ended outside the rules (e.g. forfeit).
func (b *Board) PGN(h Headers, result Result) string {
	if result == "" {
		result = b.Outcome()
	}
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	event := h.Event
	if strings.TrimSpace(event) == "" {
		event = "Casual game"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[Event \"%s\"]\n", sanitizeTag(event))
	if strings.TrimSpace(h.Site) != "" {
		fmt.Fprintf(&sb, "[Site \"%s\"]\n", sanitizeTag(h.Site))
	}
	fmt.Fprintf(&sb, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&sb, "[White \"%s\"]\n", sanitizeTag(h.White))
	fmt.Fprintf(&sb, "[Black \"%s\"]\n", sanitizeTag(h.Black))
	if strings.TrimSpace(h.Termination) != "" {
		fmt.Fprintf(&sb, "[Termination \"%s\"]\n", sanitizeTag(h.Termination))
	}
	fmt.Fprintf(&sb, "[Result \"%s\"]\n\n", result)

	san := b.MovesSAN()
	for i := 0; i < len(san); i += 2 {
		fmt.Fprintf(&sb, "%d. %s ", i/2+1, san[i])
		if i+1 < len(san) {
			sb.WriteString(san[i+1])
			sb.WriteByte(' ')
		}
	}
	sb.WriteString(string(result))
	return sb.String()
}

func sanitizeTag(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
