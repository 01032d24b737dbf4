package battle

import "time"

type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

type ShipView struct {
	Ship
	Hits int  `json:"hits"`
	Sunk bool `json:"sunk"`
}

// View is a match as seen by one participant. The opponent's fleet is never part of it,
// except for ships already sunk, whose cells every attack_result has revealed anyway.
type View struct {
	MatchID         string      `json:"matchId"`
	Viewer          string      `json:"viewer"`
	Mode            Mode        `json:"mode"`
	Phase           Phase       `json:"phase"`
	Self            PlayerView  `json:"self"`
	Opponent        *PlayerView `json:"opponent,omitempty"`
	CurrentTurn     string      `json:"currentTurn,omitempty"`
	TurnTimeLimitMs int64       `json:"turnTimeLimitMs,omitempty"`
	TurnDeadline    *time.Time  `json:"turnDeadline,omitempty"`
	Fleet           []ShipView  `json:"fleet"`
	// IncomingAttacks are the shots received on the viewer's board.
	IncomingAttacks []Attack `json:"incomingAttacks"`
	// OutgoingAttacks are the viewer's shots on the opponent's board.
	OutgoingAttacks []Attack `json:"outgoingAttacks"`
	SunkEnemyShips  []Ship   `json:"sunkEnemyShips"`
	Result          *Result  `json:"result,omitempty"`
}

// Snapshot builds viewer's view from copies only; it never aliases live board state.
func (m *Match) Snapshot(viewer string) (View, error) {
	i := m.index(viewer)
	if i < 0 {
		return View{}, ErrNotParticipant
	}

	own := m.boards[i]
	v := View{
		MatchID:         m.id,
		Viewer:          viewer,
		Mode:            m.mode,
		Phase:           m.phase,
		Self:            PlayerView{ID: m.players[i].ID, Name: m.players[i].Name, Ready: m.ready[i]},
		CurrentTurn:     m.CurrentTurn(),
		Fleet:           make([]ShipView, 0, len(own.ships)),
		IncomingAttacks: own.Attacks(),
		OutgoingAttacks: []Attack{},
		SunkEnemyShips:  []Ship{},
		Result:          m.result.clone(),
	}
	if m.clock != nil {
		v.TurnTimeLimitMs = m.clock.Limit().Milliseconds()
	}
	if d, ok := m.Deadline(); ok {
		v.TurnDeadline = &d
	}

	for si, s := range own.ships {
		hits := own.shipHits(si)
		v.Fleet = append(v.Fleet, ShipView{Ship: s.clone(), Hits: hits, Sunk: hits >= s.Size})
	}

	if m.joined == 2 {
		o := 1 - i
		v.Opponent = &PlayerView{ID: m.players[o].ID, Name: m.players[o].Name, Ready: m.ready[o]}
		v.OutgoingAttacks = m.boards[o].Attacks()
		v.SunkEnemyShips = m.boards[o].SunkShips()
	}
	return v, nil
}
