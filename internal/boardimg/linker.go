// Package boardimg builds links to a board-image web service (web-boardimage API:
// fen, lastMove, check, orientation query parameters).
package boardimg

import (
	"net/url"
	"strings"
)

// DefaultBaseURL is a public web-boardimage instance.
const DefaultBaseURL = "https://backscattering.de/web-boardimage/board.png"

// Position is what the image shows.
type Position struct {
	FEN         string
	LastFrom    string
	LastTo      string
	InCheck     bool
	Orientation string // "white" or "black"
}

// Linker turns positions into image URLs.
type Linker struct {
	base *url.URL
}

// NewLinker parses baseURL; empty uses DefaultBaseURL.
func NewLinker(baseURL string) (*Linker, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, err
	}
	return &Linker{base: u}, nil
}

// URL for the position. Only the piece placement of the FEN is sent.
func (l *Linker) URL(p Position) string {
	u := *l.base
	q := u.Query()
	placement := placementOf(p.FEN)
	q.Set("fen", placement)
	if p.LastFrom != "" && p.LastTo != "" {
		q.Set("lastMove", p.LastFrom+p.LastTo)
	}
	if p.InCheck {
		if sq := kingSquare(placement, sideToMove(p.FEN)); sq != "" {
			q.Set("check", sq)
		}
	}
	if p.Orientation == "black" {
		q.Set("orientation", "black")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func placementOf(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func sideToMove(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "w"
	}
	return fields[1]
}

// kingSquare finds the king of the side to move in a FEN piece placement.
func kingSquare(placement, side string) string {
	king := 'K'
	if side == "b" {
		king = 'k'
	}
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return ""
	}
	for i, rank := range ranks {
		file := 0
		for _, r := range rank {
			switch {
			case r >= '1' && r <= '8':
				file += int(r - '0')
			case r == king:
				if file > 7 {
					return ""
				}
				return string(rune('a'+file)) + string(rune('8'-i))
			default:
				file++
			}
		}
	}
	return ""
}
