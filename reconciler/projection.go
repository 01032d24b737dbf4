package reconciler

import (
	"maps"
	"slices"
	"strings"
	"time"

	"boardship/battle"
)

type Mark uint8

const (
	Unknown Mark = iota
	Miss
	Hit
)

func markOf(isHit bool) Mark {
	if isHit {
		return Hit
	}
	return Miss
}

// Grid holds what one side of the table knows about a board.
type Grid [battle.BoardSize][battle.BoardSize]Mark

// Projection is a client's local picture of a match. It is a plain value: copying it never
// shares state with the session that produced it.
type Projection struct {
	MatchID         string
	Viewer          string
	Mode            battle.Mode
	Phase           battle.Phase
	Self            battle.PlayerView
	Opponent        *battle.PlayerView
	CurrentTurn     string
	TurnTimeLimitMs int64
	TurnDeadline    *time.Time
	Fleet           []battle.ShipView
	// Defense marks the shots received on the viewer's board.
	Defense Grid
	// Offense marks the viewer's shots on the opponent's board.
	Offense        Grid
	SunkEnemyShips []battle.Ship
	Result         *battle.Result
}

// FromView builds the projection of a snapshot in one pass. Equal views give equal projections.
func FromView(v battle.View) Projection {
	p := Projection{
		MatchID:         v.MatchID,
		Viewer:          v.Viewer,
		Mode:            v.Mode,
		Phase:           v.Phase,
		Self:            v.Self,
		CurrentTurn:     v.CurrentTurn,
		TurnTimeLimitMs: v.TurnTimeLimitMs,
		Fleet:           make([]battle.ShipView, 0, len(v.Fleet)),
		SunkEnemyShips:  make([]battle.Ship, 0, len(v.SunkEnemyShips)),
	}
	if v.Opponent != nil {
		o := *v.Opponent
		p.Opponent = &o
	}
	if v.TurnDeadline != nil {
		d := v.TurnDeadline.UTC()
		p.TurnDeadline = &d
	}
	for _, s := range v.Fleet {
		s.Positions = slices.Clone(s.Positions)
		p.Fleet = append(p.Fleet, s)
	}
	for _, a := range v.IncomingAttacks {
		p.Defense.set(a.Cell, markOf(a.IsHit))
	}
	for _, a := range v.OutgoingAttacks {
		p.Offense.set(a.Cell, markOf(a.IsHit))
	}
	for _, s := range v.SunkEnemyShips {
		s.Positions = slices.Clone(s.Positions)
		p.SunkEnemyShips = append(p.SunkEnemyShips, s)
	}
	// sunk ships arrive in fleet order from snapshots and in sinking order from events
	slices.SortFunc(p.SunkEnemyShips, compareShips)
	if v.Result != nil {
		r := *v.Result
		r.RankDelta = maps.Clone(r.RankDelta)
		p.Result = &r
	}
	return p
}

func (g *Grid) set(c battle.Cell, m Mark) bool {
	if c.Row < 0 || c.Row >= battle.BoardSize || c.Col < 0 || c.Col >= battle.BoardSize {
		return false
	}
	g[c.Row][c.Col] = m
	return true
}

func (g Grid) At(c battle.Cell) Mark {
	if c.Row < 0 || c.Row >= battle.BoardSize || c.Col < 0 || c.Col >= battle.BoardSize {
		return Unknown
	}
	return g[c.Row][c.Col]
}

// sameShip matches by the cells a ship covers. Two ships never share a cell, ids may repeat.
func sameShip(a, b battle.Ship) bool {
	return slices.Equal(a.Positions, b.Positions)
}

func compareShips(a, b battle.Ship) int {
	if c := strings.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return slices.CompareFunc(a.Positions, b.Positions, func(x, y battle.Cell) int {
		if x.Row != y.Row {
			return x.Row - y.Row
		}
		return x.Col - y.Col
	})
}

func (p Projection) clone() Projection {
	c := p
	if p.Opponent != nil {
		o := *p.Opponent
		c.Opponent = &o
	}
	if p.TurnDeadline != nil {
		d := *p.TurnDeadline
		c.TurnDeadline = &d
	}
	c.Fleet = make([]battle.ShipView, len(p.Fleet))
	for i, s := range p.Fleet {
		s.Positions = slices.Clone(s.Positions)
		c.Fleet[i] = s
	}
	c.SunkEnemyShips = make([]battle.Ship, len(p.SunkEnemyShips))
	for i, s := range p.SunkEnemyShips {
		s.Positions = slices.Clone(s.Positions)
		c.SunkEnemyShips[i] = s
	}
	if p.Result != nil {
		r := *p.Result
		r.RankDelta = maps.Clone(p.Result.RankDelta)
		c.Result = &r
	}
	return c
}
