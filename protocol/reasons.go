package protocol

import (
	"errors"

	"boardship/battle"
)

// ReasonInternal is sent when a rejection does not match any known reason.
const ReasonInternal = "internal-error"

var reasonErrors = []error{
	battle.ErrMatchFinished,
	battle.ErrMatchAborted,
	battle.ErrNotParticipant,
	battle.ErrAlreadyJoined,
	battle.ErrRoomFull,
	battle.ErrWrongPhase,
	battle.ErrAlreadyReady,
	battle.ErrNotYourTurn,
	battle.ErrCellAlreadyAttacked,
	battle.ErrTurnExpired,
	battle.ErrNoTurnClock,
	battle.ErrDeadlineNotReached,
	battle.ErrInvalidShipSet,
	battle.ErrMalformedShip,
	battle.ErrOverlap,
	battle.ErrOutOfBounds,
	battle.ErrAlreadyPlaced,
	battle.ErrInvalidMode,
	ErrUnknownMessageType,
	ErrMalformedMessage,
	ErrRateLimited,
}

// Reason returns the wire reason code of err: the text of the first known sentinel it wraps.
func Reason(err error) string {
	for _, target := range reasonErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ReasonInternal
}
