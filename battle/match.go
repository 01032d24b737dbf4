package battle

import (
	"errors"
	"fmt"
	"time"
)

// RankPolicy returns the rank point deltas of a ranked match's winner and loser.
type RankPolicy func(winner, loser Participant) (winnerDelta, loserDelta int)

// FlatRankPolicy awards fixed deltas regardless of the players' current points.
func FlatRankPolicy(win, loss int) RankPolicy {
	return func(Participant, Participant) (int, int) {
		return win, loss
	}
}

type Config struct {
	Mode Mode
	// TurnTimeLimit applies to speed matches only; zero means DefaultSpeedTurnLimit.
	TurnTimeLimit time.Duration
	// RankPolicy is consulted for ranked matches only; nil leaves RankDelta empty.
	RankPolicy RankPolicy
	Now        func() time.Time
}

// TurnDecision is who holds the turn after a resolved attack or timeout.
type TurnDecision struct {
	Previous string
	Holder   string
	Kept     bool
	// Deadline is zero outside speed mode.
	Deadline time.Time
}

// FleetOutcome reports whether a fleet submission started the game.
type FleetOutcome struct {
	Started     bool
	FirstPlayer string
	Deadline    time.Time
}

type AttackResult struct {
	Attacker string
	Defender string
	AttackOutcome
	// Turn is meaningless when Finished is set.
	Turn     TurnDecision
	Finished *Result
}

// Match is the authoritative state of one room. It is the only writer of its two boards.
// Match is not safe for concurrent use: callers serialize every call through one owner.
type Match struct {
	id      string
	mode    Mode
	players [2]Participant
	joined  int
	boards  [2]*Board
	ready   [2]bool
	phase   Phase
	turn    int
	clock   *TurnClock
	result  *Result
	policy  RankPolicy
	now     func() time.Time

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

func NewMatch(id string, host Participant, cfg Config) (*Match, error) {
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	m := newMatch(id, mode, cfg)
	m.players[0] = host
	m.joined = 1
	m.createdAt = m.now()
	return m, nil
}

func newMatch(id string, mode Mode, cfg Config) *Match {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	m := &Match{
		id:     id,
		mode:   mode,
		boards: [2]*Board{NewBoard(), NewBoard()},
		phase:  PhaseWaiting,
		policy: cfg.RankPolicy,
		now:    now,
	}
	if mode == ModeSpeed {
		m.clock = NewTurnClock(cfg.TurnTimeLimit)
	}
	return m
}

func (m *Match) ID() string            { return m.id }
func (m *Match) Mode() Mode            { return m.mode }
func (m *Match) Phase() Phase          { return m.phase }
func (m *Match) CreatedAt() time.Time  { return m.createdAt }
func (m *Match) StartedAt() time.Time  { return m.startedAt }
func (m *Match) FinishedAt() time.Time { return m.finishedAt }
func (m *Match) Result() *Result       { return m.result.clone() }

// CurrentTurn is the turn holder; empty unless the match is playing.
func (m *Match) CurrentTurn() string {
	if m.phase != PhasePlaying {
		return ""
	}
	return m.players[m.turn].ID
}

// Deadline is the current turn deadline of a playing speed match.
func (m *Match) Deadline() (time.Time, bool) {
	if m.clock == nil || !m.clock.Running() {
		return time.Time{}, false
	}
	return m.clock.Deadline(), true
}

func (m *Match) TurnTimeLimit() time.Duration {
	if m.clock == nil {
		return 0
	}
	return m.clock.Limit()
}

// Players returns the joined participants in join order.
func (m *Match) Players() []Participant {
	return append([]Participant(nil), m.players[:m.joined]...)
}

func (m *Match) IsParticipant(id string) bool {
	return m.index(id) >= 0
}

func (m *Match) Participant(id string) (Participant, bool) {
	i := m.index(id)
	if i < 0 {
		return Participant{}, false
	}
	return m.players[i], true
}

// HitsLanded is the number of hits id scored on the opponent's board.
func (m *Match) HitsLanded(id string) int {
	i := m.index(id)
	if i < 0 {
		return 0
	}
	return m.boards[1-i].HitsTaken()
}

func (m *Match) index(id string) int {
	if id == "" {
		return -1
	}
	for i := 0; i < m.joined; i++ {
		if m.players[i].ID == id {
			return i
		}
	}
	return -1
}

// Join seats the second participant and opens fleet placement.
func (m *Match) Join(p Participant) error {
	if m.phase == PhaseFinished {
		return ErrMatchFinished
	}
	if m.IsParticipant(p.ID) {
		return ErrAlreadyJoined
	}
	if m.phase != PhaseWaiting || m.joined == 2 {
		return ErrRoomFull
	}
	m.players[1] = p
	m.joined = 2
	m.phase = PhasePlacement
	return nil
}

// SubmitFleet places id's fleet and marks them ready. The second ready player starts the game;
// player1 (the room host) always takes the first turn.
func (m *Match) SubmitFleet(id string, ships []Ship) (FleetOutcome, error) {
	if m.phase == PhaseFinished {
		return FleetOutcome{}, ErrMatchFinished
	}
	i := m.index(id)
	if i < 0 {
		return FleetOutcome{}, ErrNotParticipant
	}
	if m.phase != PhasePlacement && m.phase != PhaseReady {
		return FleetOutcome{}, fmt.Errorf("%w: fleets are placed during placement, match is %s", ErrWrongPhase, m.phase)
	}
	if m.ready[i] {
		return FleetOutcome{}, ErrAlreadyReady
	}
	if err := m.boards[i].PlaceFleet(ships); err != nil {
		return FleetOutcome{}, err
	}

	m.ready[i] = true
	if !m.ready[1-i] {
		m.phase = PhaseReady
		return FleetOutcome{}, nil
	}

	m.phase = PhasePlaying
	m.turn = 0
	m.startedAt = m.now()
	out := FleetOutcome{Started: true, FirstPlayer: m.players[0].ID}
	if m.clock != nil {
		out.Deadline = m.clock.Start(m.startedAt)
	}
	return out, nil
}

// Attack fires at the opponent's board. A hit keeps the turn, a miss passes it.
func (m *Match) Attack(id string, c Cell) (AttackResult, error) {
	if m.phase == PhaseFinished {
		return AttackResult{}, ErrMatchFinished
	}
	i := m.index(id)
	if i < 0 {
		return AttackResult{}, ErrNotParticipant
	}
	if m.phase != PhasePlaying {
		return AttackResult{}, fmt.Errorf("%w: match is %s", ErrWrongPhase, m.phase)
	}
	if m.turn != i {
		return AttackResult{}, ErrNotYourTurn
	}
	now := m.now()
	if m.clock != nil && m.clock.Expired(now) {
		return AttackResult{}, ErrTurnExpired
	}

	defender := m.boards[1-i]
	out, err := defender.ApplyAttack(c)
	if err != nil {
		if errors.Is(err, ErrAlreadyAttacked) {
			return AttackResult{}, fmt.Errorf("%w: %s", ErrCellAlreadyAttacked, c)
		}
		return AttackResult{}, err
	}
	if err := defender.verify(); err != nil {
		m.abort(err)
		return AttackResult{}, fmt.Errorf("%w: %w", ErrMatchAborted, err)
	}

	res := AttackResult{
		Attacker:      id,
		Defender:      m.players[1-i].ID,
		AttackOutcome: out,
	}

	if defender.AllShipsSunk() {
		res.Finished = m.finish(i, ReasonAllShipsSunk, "")
		return res, nil
	}

	res.Turn = TurnDecision{Previous: id, Holder: id, Kept: out.Hit}
	if !out.Hit {
		m.turn = 1 - i
		res.Turn.Holder = m.players[m.turn].ID
	}
	if m.clock != nil {
		res.Turn.Deadline = m.clock.Start(now)
	}
	return res, nil
}

// Timeout passes the turn of a speed match whose deadline elapsed. It is re-validated against
// the current holder so stale expiries are rejected.
func (m *Match) Timeout(id string) (TurnDecision, error) {
	if m.phase == PhaseFinished {
		return TurnDecision{}, ErrMatchFinished
	}
	if m.phase != PhasePlaying {
		return TurnDecision{}, fmt.Errorf("%w: match is %s", ErrWrongPhase, m.phase)
	}
	if m.clock == nil {
		return TurnDecision{}, ErrNoTurnClock
	}
	i := m.index(id)
	if i < 0 {
		return TurnDecision{}, ErrNotParticipant
	}
	if m.turn != i {
		return TurnDecision{}, ErrNotYourTurn
	}
	now := m.now()
	if !m.clock.Expired(now) {
		return TurnDecision{}, ErrDeadlineNotReached
	}

	m.turn = 1 - i
	return TurnDecision{
		Previous: id,
		Holder:   m.players[m.turn].ID,
		Deadline: m.clock.Start(now),
	}, nil
}

// Forfeit ends the match in favour of the other participant. A host leaving a room nobody
// joined yet ends it without a winner.
func (m *Match) Forfeit(id, message string) (Result, error) {
	if m.phase == PhaseFinished {
		return Result{}, ErrMatchFinished
	}
	i := m.index(id)
	if i < 0 {
		return Result{}, ErrNotParticipant
	}
	if m.joined < 2 {
		m.phase = PhaseFinished
		m.finishedAt = m.now()
		m.result = &Result{Loser: id, Reason: ReasonForfeit, Message: message}
		return *m.result.clone(), nil
	}
	return *m.finish(1-i, ReasonForfeit, message), nil
}

func (m *Match) finish(winner int, reason WinReason, message string) *Result {
	m.phase = PhaseFinished
	m.finishedAt = m.now()
	if m.clock != nil {
		m.clock.Stop()
	}

	w, l := m.players[winner], m.players[1-winner]
	m.result = &Result{Winner: w.ID, Loser: l.ID, Reason: reason, Message: message}

	if m.mode == ModeRanked && m.policy != nil && !m.startedAt.IsZero() {
		wd, ld := m.policy(w, l)
		m.result.RankDelta = map[string]int{w.ID: wd, l.ID: ld}
	}
	return m.result.clone()
}

// abort forces the terminal error state after an invariant violation.
func (m *Match) abort(cause error) {
	m.phase = PhaseFinished
	m.finishedAt = m.now()
	if m.clock != nil {
		m.clock.Stop()
	}
	m.result = &Result{Reason: ReasonAborted, Message: cause.Error()}
}
