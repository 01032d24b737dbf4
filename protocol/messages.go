package protocol

import (
	"time"

	"boardship/battle"
)

// MessageType tags every frame on the wire.
type MessageType string

// Client -> server
const (
	TypeReady    MessageType = "ready"
	TypeAttack   MessageType = "attack"
	TypeTimeout  MessageType = "timeout"
	TypeLeave    MessageType = "leave"
	TypeSnapshot MessageType = "snapshot"
)

// Server -> client. TypeSnapshot is shared: as an intent it asks for a resync, as an event it
// carries the view.
const (
	TypePlayerJoined   MessageType = "player_joined"
	TypePlayerReady    MessageType = "player_ready"
	TypeGameStart      MessageType = "game_start"
	TypeAttackResult   MessageType = "attack_result"
	TypeAttackError    MessageType = "attack_error"
	TypeTurnChange     MessageType = "turn_change"
	TypeTurnKeep       MessageType = "turn_keep"
	TypeGameOver       MessageType = "game_over"
	TypeIntentRejected MessageType = "intent_rejected"
	TypePresence       MessageType = "presence"
)

// Intent is a client request, already bound to the authenticated sender by the connection it
// arrived on.
type Intent interface {
	Type() MessageType
	intent()
}

// Event is a server notification.
type Event interface {
	Type() MessageType
	event()
}

type ReadyIntent struct {
	Ships []battle.Ship `json:"ships"`
}

type AttackIntent struct {
	Cell battle.Cell `json:"cell"`
}

type TimeoutIntent struct{}

type LeaveIntent struct{}

type SnapshotIntent struct{}

func (*ReadyIntent) Type() MessageType    { return TypeReady }
func (*AttackIntent) Type() MessageType   { return TypeAttack }
func (*TimeoutIntent) Type() MessageType  { return TypeTimeout }
func (*LeaveIntent) Type() MessageType    { return TypeLeave }
func (*SnapshotIntent) Type() MessageType { return TypeSnapshot }

func (*ReadyIntent) intent()    {}
func (*AttackIntent) intent()   {}
func (*TimeoutIntent) intent()  {}
func (*LeaveIntent) intent()    {}
func (*SnapshotIntent) intent() {}

type PlayerJoinedEvent struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type PlayerReadyEvent struct {
	PlayerID string `json:"playerId"`
}

type GameStartEvent struct {
	FirstPlayer     string      `json:"firstPlayer"`
	GameMode        battle.Mode `json:"gameMode"`
	TurnTimeLimitMs int64       `json:"turnTimeLimit,omitempty"`
	Deadline        *time.Time  `json:"deadline,omitempty"`
}

type AttackResultEvent struct {
	PlayerID string       `json:"playerId"`
	Cell     battle.Cell  `json:"cell"`
	IsHit    bool         `json:"isHit"`
	ShipSunk *battle.Ship `json:"shipSunk,omitempty"`
}

// AttackErrorEvent goes to the attacker only. For an already attacked cell it repeats what
// the cell holds so the sender can mark it without a resync.
type AttackErrorEvent struct {
	Cell       battle.Cell `json:"cell"`
	Reason     string      `json:"reason"`
	AttackedBy string      `json:"attackedBy,omitempty"`
	IsHit      *bool       `json:"isHit,omitempty"`
}

type TurnReason string

const (
	TurnReasonMiss    TurnReason = "miss"
	TurnReasonTimeout TurnReason = "timeout"
)

type TurnChangeEvent struct {
	CurrentPlayer  string     `json:"currentPlayer"`
	PreviousPlayer string     `json:"previousPlayer"`
	Reason         TurnReason `json:"reason"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

type TurnKeepEvent struct {
	CurrentPlayer string     `json:"currentPlayer"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

type GameOverEvent struct {
	Winner  string           `json:"winner,omitempty"`
	Loser   string           `json:"loser,omitempty"`
	Reason  battle.WinReason `json:"reason"`
	Message string           `json:"message,omitempty"`
	RPDelta map[string]int   `json:"rpDelta,omitempty"`
}

// IntentRejectedEvent answers a rejected non-attack intent, to its sender only.
type IntentRejectedEvent struct {
	Intent MessageType `json:"intent"`
	Reason string      `json:"reason"`
}

type SnapshotEvent struct {
	View battle.View `json:"view"`
}

type PresenceEvent struct {
	PlayerID  string `json:"playerId"`
	Connected bool   `json:"connected"`
}

func (*PlayerJoinedEvent) Type() MessageType   { return TypePlayerJoined }
func (*PlayerReadyEvent) Type() MessageType    { return TypePlayerReady }
func (*GameStartEvent) Type() MessageType      { return TypeGameStart }
func (*AttackResultEvent) Type() MessageType   { return TypeAttackResult }
func (*AttackErrorEvent) Type() MessageType    { return TypeAttackError }
func (*TurnChangeEvent) Type() MessageType     { return TypeTurnChange }
func (*TurnKeepEvent) Type() MessageType       { return TypeTurnKeep }
func (*GameOverEvent) Type() MessageType       { return TypeGameOver }
func (*IntentRejectedEvent) Type() MessageType { return TypeIntentRejected }
func (*SnapshotEvent) Type() MessageType       { return TypeSnapshot }
func (*PresenceEvent) Type() MessageType       { return TypePresence }

func (*PlayerJoinedEvent) event()   {}
func (*PlayerReadyEvent) event()    {}
func (*GameStartEvent) event()      {}
func (*AttackResultEvent) event()   {}
func (*AttackErrorEvent) event()    {}
func (*TurnChangeEvent) event()     {}
func (*TurnKeepEvent) event()       {}
func (*GameOverEvent) event()       {}
func (*IntentRejectedEvent) event() {}
func (*SnapshotEvent) event()       {}
func (*PresenceEvent) event()       {}

var intentFactories = map[MessageType]func() Intent{
	TypeReady:    func() Intent { return &ReadyIntent{} },
	TypeAttack:   func() Intent { return &AttackIntent{} },
	TypeTimeout:  func() Intent { return &TimeoutIntent{} },
	TypeLeave:    func() Intent { return &LeaveIntent{} },
	TypeSnapshot: func() Intent { return &SnapshotIntent{} },
}

var eventFactories = map[MessageType]func() Event{
	TypePlayerJoined:   func() Event { return &PlayerJoinedEvent{} },
	TypePlayerReady:    func() Event { return &PlayerReadyEvent{} },
	TypeGameStart:      func() Event { return &GameStartEvent{} },
	TypeAttackResult:   func() Event { return &AttackResultEvent{} },
	TypeAttackError:    func() Event { return &AttackErrorEvent{} },
	TypeTurnChange:     func() Event { return &TurnChangeEvent{} },
	TypeTurnKeep:       func() Event { return &TurnKeepEvent{} },
	TypeGameOver:       func() Event { return &GameOverEvent{} },
	TypeIntentRejected: func() Event { return &IntentRejectedEvent{} },
	TypeSnapshot:       func() Event { return &SnapshotEvent{} },
	TypePresence:       func() Event { return &PresenceEvent{} },
}

func MakeGameOver(r battle.Result) *GameOverEvent {
	return &GameOverEvent{
		Winner:  r.Winner,
		Loser:   r.Loser,
		Reason:  r.Reason,
		Message: r.Message,
		RPDelta: r.RankDelta,
	}
}

func MakeTurnEvent(d battle.TurnDecision, reason TurnReason) Event {
	var deadline *time.Time
	if !d.Deadline.IsZero() {
		dl := d.Deadline
		deadline = &dl
	}
	if d.Kept {
		return &TurnKeepEvent{CurrentPlayer: d.Holder, Deadline: deadline}
	}
	return &TurnChangeEvent{
		CurrentPlayer:  d.Holder,
		PreviousPlayer: d.Previous,
		Reason:         reason,
		Deadline:       deadline,
	}
}
