package battle

import (
	"errors"
	"fmt"
	"time"
)

// Record is the persisted form of a match: enough to rebuild it after a restart.
type Record struct {
	ID              string        `json:"id"`
	Mode            Mode          `json:"mode"`
	Phase           Phase         `json:"phase"`
	Players         []Participant `json:"players"`
	Ready           []bool        `json:"ready"`
	Fleets          [][]Ship      `json:"fleets"`
	Attacks         [][]Attack    `json:"attacks"`
	Turn            string        `json:"turn,omitempty"`
	TurnTimeLimitMs int64         `json:"turnTimeLimitMs,omitempty"`
	Deadline        *time.Time    `json:"deadline,omitempty"`
	Result          *Result       `json:"result,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       time.Time     `json:"startedAt,omitzero"`
	FinishedAt      time.Time     `json:"finishedAt,omitzero"`
}

func (m *Match) Record() Record {
	rec := Record{
		ID:         m.id,
		Mode:       m.mode,
		Phase:      m.phase,
		Players:    m.Players(),
		Ready:      make([]bool, m.joined),
		Fleets:     make([][]Ship, m.joined),
		Attacks:    make([][]Attack, m.joined),
		Result:     m.result.clone(),
		CreatedAt:  m.createdAt,
		StartedAt:  m.startedAt,
		FinishedAt: m.finishedAt,
	}
	if m.phase == PhasePlaying {
		rec.Turn = m.players[m.turn].ID
	}
	if m.clock != nil {
		rec.TurnTimeLimitMs = m.clock.Limit().Milliseconds()
	}
	if d, ok := m.Deadline(); ok {
		rec.Deadline = &d
	}
	for i := 0; i < m.joined; i++ {
		rec.Ready[i] = m.ready[i]
		rec.Fleets[i] = m.boards[i].Ships()
		rec.Attacks[i] = m.boards[i].Attacks()
	}
	return rec
}

// Restore rebuilds a match by replaying the recorded fleets and attacks through the board
// rules. A record that fails this replay still yields a match, forced to finished/aborted,
// alongside an ErrCorruptRecord error. A nil match is returned only when the record has no
// identity to attach the aborted state to.
func Restore(rec Record, cfg Config) (*Match, error) {
	if rec.ID == "" || len(rec.Players) == 0 || len(rec.Players) > 2 {
		return nil, fmt.Errorf("%w: record has no id or %d players", ErrCorruptRecord, len(rec.Players))
	}
	mode, err := ParseMode(string(rec.Mode))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if rec.TurnTimeLimitMs > 0 {
		cfg.TurnTimeLimit = time.Duration(rec.TurnTimeLimitMs) * time.Millisecond
	}

	m := newMatch(rec.ID, mode, cfg)
	m.joined = len(rec.Players)
	copy(m.players[:], rec.Players)
	m.createdAt = rec.CreatedAt
	m.startedAt = rec.StartedAt
	m.finishedAt = rec.FinishedAt

	if err := m.replay(rec); err != nil {
		if m.finishedAt.IsZero() {
			m.finishedAt = m.now()
		}
		m.phase = PhaseFinished
		if m.clock != nil {
			m.clock.Stop()
		}
		m.result = &Result{Reason: ReasonAborted, Message: err.Error()}
		return m, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return m, nil
}

func (m *Match) replay(rec Record) error {
	if len(rec.Ready) > m.joined || len(rec.Fleets) > m.joined || len(rec.Attacks) > m.joined {
		return errors.New("per-player data longer than player list")
	}
	if m.joined == 2 && rec.Players[0].ID == rec.Players[1].ID {
		return errors.New("duplicate participant")
	}

	for i := 0; i < len(rec.Fleets); i++ {
		if len(rec.Fleets[i]) == 0 {
			continue
		}
		if err := m.boards[i].PlaceFleet(rec.Fleets[i]); err != nil {
			return fmt.Errorf("fleet %d: %w", i, err)
		}
	}
	for i := 0; i < len(rec.Ready); i++ {
		m.ready[i] = rec.Ready[i]
		if m.ready[i] != m.boards[i].Placed() {
			return fmt.Errorf("player %d ready=%v without matching fleet", i, m.ready[i])
		}
	}
	for i := 0; i < len(rec.Attacks); i++ {
		for _, a := range rec.Attacks[i] {
			out, err := m.boards[i].ApplyAttack(a.Cell)
			if err != nil {
				return fmt.Errorf("attack on board %d: %w", i, err)
			}
			if out.Hit != a.IsHit {
				return fmt.Errorf("%w: attack %s on board %d recorded hit=%v", ErrInvariantViolation, a.Cell, i, a.IsHit)
			}
		}
		if err := m.boards[i].verify(); err != nil {
			return err
		}
	}

	m.phase = rec.Phase
	switch rec.Phase {
	case PhaseWaiting:
		if m.joined != 1 {
			return fmt.Errorf("waiting with %d players", m.joined)
		}
	case PhasePlacement:
		if m.joined != 2 || m.ready[0] || m.ready[1] {
			return errors.New("placement with a ready player")
		}
	case PhaseReady:
		if m.joined != 2 || m.ready[0] == m.ready[1] {
			return errors.New("ready phase without exactly one ready player")
		}
	case PhasePlaying:
		if m.joined != 2 || !m.ready[0] || !m.ready[1] {
			return errors.New("playing without two ready players")
		}
		if m.boards[0].AllShipsSunk() || m.boards[1].AllShipsSunk() {
			return errors.New("playing with a fully sunk fleet")
		}
		m.turn = m.index(rec.Turn)
		if m.turn < 0 {
			return fmt.Errorf("turn holder %q is not a participant", rec.Turn)
		}
		if m.clock != nil {
			if rec.Deadline == nil {
				return errors.New("speed match without deadline")
			}
			m.clock.deadline = *rec.Deadline
		}
	case PhaseFinished:
		if rec.Result == nil {
			return errors.New("finished without result")
		}
		m.result = rec.Result.clone()
	default:
		return fmt.Errorf("unknown phase %q", rec.Phase)
	}
	return nil
}
