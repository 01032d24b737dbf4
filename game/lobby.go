package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	tickPeriod = time.Second
	pingPeriod = 30 * time.Second
)

type lobby struct {
	rooms             map[string]Room
	addAndRunRoomChan chan Room
	restoreRoomChan   chan restoreRequest
	removeRoomChan    chan string
	joinRoomReqs      chan roomJoinRequest
	snapshotReqs      chan snapshotRequest
	shutdownChan      chan struct{}
	shutdownOnce      sync.Once
	stopped           chan struct{}
	idGenerator       UniqueIdGenerator
	tickerCreator     PeriodicTickerChannelCreator
}

func NewLobby(idgen UniqueIdGenerator, tickerCreator PeriodicTickerChannelCreator) *lobby {
	return &lobby{
		rooms:             map[string]Room{},
		addAndRunRoomChan: make(chan Room, 32),
		restoreRoomChan:   make(chan restoreRequest, 32),
		removeRoomChan:    make(chan string, 32),
		joinRoomReqs:      make(chan roomJoinRequest, 256),
		snapshotReqs:      make(chan snapshotRequest, 256),
		shutdownChan:      make(chan struct{}),
		stopped:           make(chan struct{}),
		idGenerator:       idgen,
		tickerCreator:     tickerCreator,
	}
}

func (l *lobby) RequestAddAndRunRoom(ctx context.Context, r Room) error {
	select {
	case l.addAndRunRoomChan <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.shutdownChan:
		return ErrLobbyClosed
	}
}

func (l *lobby) RequestRestoreRoom(ctx context.Context, r Room, jreq roomJoinRequest) error {
	select {
	case l.restoreRoomChan <- restoreRequest{room: r, join: jreq}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.shutdownChan:
		return ErrLobbyClosed
	}
}

func (l *lobby) ForwardPlayerJoinRequestToRoom(ctx context.Context, jreq roomJoinRequest) {
	select {
	case <-ctx.Done():
	case <-l.shutdownChan:
	case l.joinRoomReqs <- jreq:
	}
}

func (l *lobby) ForwardSnapshotRequestToRoom(ctx context.Context, sreq snapshotRequest) {
	select {
	case <-ctx.Done():
	case <-l.shutdownChan:
	case l.snapshotReqs <- sreq:
	}
}

func (l *lobby) RemoveRoom(roomId string) {
	select {
	case l.removeRoomChan <- roomId:
	case <-l.shutdownChan:
	}
}

// Shutdown closes every room and waits until their game loops returned.
func (l *lobby) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdownChan) })
	select {
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lobby) LobbyActor(started chan struct{}) {
	ticker := l.tickerCreator.Create(tickPeriod)
	pingTicker := l.tickerCreator.Create(pingPeriod)

	close(started)

	for {
		select {
		case now := <-ticker:
			for _, r := range l.rooms {
				r.Tick(now)
			}
		case <-pingTicker:
			for _, r := range l.rooms {
				r.PingPlayers()
			}

		case room := <-l.addAndRunRoomChan:
			l.handleAddAndRunRoom(room)

		case req := <-l.restoreRoomChan:
			l.handleRestoreRoom(req)

		case roomId := <-l.removeRoomChan:
			l.handleRemoveRoom(roomId)

		case joinReq := <-l.joinRoomReqs:
			l.handleJoinReq(joinReq)

		case snapshotReq := <-l.snapshotReqs:
			l.handleSnapshotReq(snapshotReq)

		case <-l.shutdownChan:
			l.handleShutdown()
			return
		}
	}
}

func (l *lobby) handleAddAndRunRoom(r Room) {
	id := l.idGenerator.Generate()
	r.SetParentLobby(l)
	r.SetId(id)
	l.rooms[id] = r
	go r.GameLoop()
	log.Debug().Str("room", id).Int("rooms", len(l.rooms)).Msg("room created")
}

// handleRestoreRoom runs a room loaded from storage, unless another request restored the same
// id first. Either way the requesting player is forwarded to the running room.
func (l *lobby) handleRestoreRoom(req restoreRequest) {
	id := req.room.Id()
	if running, ok := l.rooms[id]; ok {
		running.RequestJoin(req.join)
		return
	}
	if !l.idGenerator.Reserve(id) {
		log.Warn().Str("room", id).Msg("restoring a room whose id was still reserved")
	}
	req.room.SetParentLobby(l)
	l.rooms[id] = req.room
	go req.room.GameLoop()
	req.room.RequestJoin(req.join)
	log.Debug().Str("room", id).Int("rooms", len(l.rooms)).Msg("room restored")
}

func (l *lobby) handleRemoveRoom(toRemoveId string) {
	room, ok := l.rooms[toRemoveId]
	if !ok {
		return
	}
	delete(l.rooms, toRemoveId)
	room.CloseAndRelease()
	l.idGenerator.Dispose(toRemoveId)
	log.Debug().Str("room", toRemoveId).Int("rooms", len(l.rooms)).Msg("room removed")
}

func (l *lobby) handleJoinReq(joinReq roomJoinRequest) {
	room, ok := l.rooms[joinReq.roomId]
	if !ok {
		joinReq.errChan <- ErrRoomNotFound
		close(joinReq.errChan)
		return
	}
	room.RequestJoin(joinReq)
}

func (l *lobby) handleSnapshotReq(snapshotReq snapshotRequest) {
	room, ok := l.rooms[snapshotReq.roomId]
	if !ok {
		snapshotReq.resp <- snapshotResponse{err: ErrRoomNotFound}
		return
	}
	room.RequestSnapshot(snapshotReq)
}

func (l *lobby) handleShutdown() {
	for id, room := range l.rooms {
		room.CloseAndRelease()
		<-room.Done()
		l.idGenerator.Dispose(id)
		delete(l.rooms, id)
	}
	close(l.stopped)
}
