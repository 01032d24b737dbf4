package battle

import (
	"fmt"
	"maps"
	"strings"
)

const BoardSize = 10

type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) inBounds() bool {
	return c.Row >= 0 && c.Row < BoardSize && c.Col >= 0 && c.Col < BoardSize
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

type Ship struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Size        int         `json:"size"`
	Positions   []Cell      `json:"positions"`
	Orientation Orientation `json:"orientation"`
}

func (s Ship) clone() Ship {
	s.Positions = append([]Cell(nil), s.Positions...)
	return s
}

// Attack is one shot received by a board.
type Attack struct {
	Cell  Cell `json:"cell"`
	IsHit bool `json:"isHit"`
}

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhasePlacement Phase = "placement"
	PhaseReady     Phase = "ready"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
)

type Mode string

const (
	ModeClassic Mode = "classic"
	ModeSpeed   Mode = "speed"
	ModeRanked  Mode = "ranked"
)

// ParseMode accepts the mode names case-insensitively; the empty string means classic.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeClassic:
		return ModeClassic, nil
	case ModeSpeed:
		return ModeSpeed, nil
	case ModeRanked:
		return ModeRanked, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

type WinReason string

const (
	ReasonAllShipsSunk       WinReason = "all_ships_sunk"
	ReasonForfeit            WinReason = "forfeit"
	ReasonTimeoutElimination WinReason = "timeout_elimination"
	ReasonAborted            WinReason = "aborted"
)

type Participant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RankPoints int    `json:"rankPoints"`
}

// Result describes a terminal match. Winner and Loser are empty for aborted matches and for
// rooms abandoned before an opponent joined.
type Result struct {
	Winner    string         `json:"winner,omitempty"`
	Loser     string         `json:"loser,omitempty"`
	Reason    WinReason      `json:"reason"`
	Message   string         `json:"message,omitempty"`
	RankDelta map[string]int `json:"rankDelta,omitempty"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.RankDelta = maps.Clone(r.RankDelta)
	return &c
}
