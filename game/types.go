package game

import (
	"boardship/battle"
	"boardship/protocol"
	"time"
)

type intentEnvelope struct {
	intent protocol.Intent
	from   Player
}

// roomJoinRequest is answered on errChan: a nil value (or a close) means the player is seated.
type roomJoinRequest struct {
	roomId  string
	player  Player
	errChan chan error
}

type snapshotRequest struct {
	roomId string
	viewer string
	resp   chan snapshotResponse
}

type snapshotResponse struct {
	view battle.View
	err  error
}

// restoreRequest brings a stored room back and seats the player who asked for it.
type restoreRequest struct {
	room Room
	join roomJoinRequest
}

type turnExpiry struct {
	holder   string
	deadline time.Time
}

type dataSendTask struct {
	to    Player
	event protocol.Event
}
