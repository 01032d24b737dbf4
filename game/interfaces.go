package game

import (
	"boardship/battle"
	"boardship/domain"
	"boardship/protocol"
	"context"
	"time"
)

type WebsocketConnection interface {
	Close()
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

type UserGetter interface {
	GetUserById(ctx context.Context, id string) (domain.User, error)
}

// MatchLoader finds the stored record of a room the lobby no longer runs.
type MatchLoader interface {
	LoadMatch(ctx context.Context, id string) (battle.Record, error)
}

// Recorder receives every state change a room wants to outlive it. Implementations must not
// block the caller.
type Recorder interface {
	SaveMatch(rec battle.Record)
	RecordResult(res domain.MatchResult)
}

type UniqueIdGenerator interface {
	Generate() string
	// Reserve claims an id that was generated before, e.g. by a previous process.
	Reserve(id string) bool
	Dispose(id string)
}

type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}

// TimerScheduler runs f once after d. The returned stop func reports whether it prevented f.
type TimerScheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type Player interface {
	Id() string
	Username() string
	RankPoints() int
	Codec() protocol.Codec
	Send(data []byte) error
	Ping() error
	SetRoom(r Room)
	CancelAndRelease()
}

type Room interface {
	Id() string
	PingPlayers()
	Send(ctx context.Context, e intentEnvelope)
	RemoveMe(p Player)
	RequestJoin(jreq roomJoinRequest)
	RequestSnapshot(sreq snapshotRequest)
	Tick(now time.Time)
	GameLoop()
	Done() <-chan struct{}
	CloseAndRelease()
	SetParentLobby(l Lobby)
	SetId(id string)
}

type Lobby interface {
	RequestAddAndRunRoom(ctx context.Context, r Room) error
	RequestRestoreRoom(ctx context.Context, r Room, jreq roomJoinRequest) error
	ForwardPlayerJoinRequestToRoom(ctx context.Context, jreq roomJoinRequest)
	ForwardSnapshotRequestToRoom(ctx context.Context, sreq snapshotRequest)
	RemoveRoom(roomId string)
}
