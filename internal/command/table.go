package command

import (
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/park285/Tarrasch-KakaoTalk-bot/internal/records"
)

// formatTable lays rows out in space-padded columns for a monospace block.
func formatTable(firstColumn string, rows []records.Row) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	_, _ = w.Write([]byte(strings.Join([]string{firstColumn, "Games", "Wins", "Losses", "Draws"}, "\t") + "\n"))
	for _, r := range rows {
		line := strings.Join([]string{
			r.Name,
			strconv.Itoa(r.Games),
			strconv.Itoa(r.Wins),
			strconv.Itoa(r.Losses),
			strconv.Itoa(r.Draws),
		}, "\t")
		_, _ = w.Write([]byte(line + "\n"))
	}
	_ = w.Flush()
	return b.String()
}
