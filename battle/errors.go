package battle

import "errors"

// Board placement errors
var (
	ErrInvalidShipSet = errors.New("invalid-ship-set")
	ErrMalformedShip  = errors.New("malformed-ship")
	ErrOverlap        = errors.New("ships-overlap")
	ErrOutOfBounds    = errors.New("out-of-bounds")
	ErrAlreadyPlaced  = errors.New("fleet-already-placed")
)

// Board attack errors
var (
	ErrAlreadyAttacked = errors.New("already-attacked")
)

// Match transition errors. All of them leave the match untouched.
var (
	ErrMatchFinished       = errors.New("match-finished")
	ErrMatchAborted        = errors.New("match-aborted")
	ErrNotParticipant      = errors.New("not-participant")
	ErrAlreadyJoined       = errors.New("already-joined")
	ErrRoomFull            = errors.New("room-full")
	ErrWrongPhase          = errors.New("wrong-phase")
	ErrAlreadyReady        = errors.New("already-ready")
	ErrNotYourTurn         = errors.New("not-your-turn")
	ErrCellAlreadyAttacked = errors.New("cell-already-attacked")
	ErrTurnExpired         = errors.New("turn-expired")
	ErrNoTurnClock         = errors.New("no-turn-clock")
	ErrDeadlineNotReached  = errors.New("deadline-not-reached")
	ErrInvalidMode         = errors.New("invalid-mode")
)

var (
	ErrInvariantViolation = errors.New("invariant-violation")
	ErrCorruptRecord      = errors.New("corrupt-record")
)
