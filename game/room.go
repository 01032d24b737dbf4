package game

import (
	"boardship/battle"
	"boardship/domain"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultFinishedRetention = 10 * time.Minute
	DefaultIdleTimeout       = 5 * time.Minute
)

// RoomOptions is shared by every room a handler creates or restores.
type RoomOptions struct {
	// TurnTimeLimit applies to speed rooms; zero means battle.DefaultSpeedTurnLimit.
	TurnTimeLimit time.Duration
	RankPolicy    battle.RankPolicy
	// FinishedRetention is how long a finished room keeps answering reconnects.
	FinishedRetention time.Duration
	// IdleTimeout is how long a room with nobody connected stays loaded.
	IdleTimeout time.Duration
	Timers      TimerScheduler
	Recorder    Recorder
	Now         func() time.Time
}

func (o RoomOptions) withDefaults() RoomOptions {
	if o.FinishedRetention <= 0 {
		o.FinishedRetention = DefaultFinishedRetention
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.Timers == nil {
		o.Timers = &timers{}
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o RoomOptions) matchConfig(mode battle.Mode) battle.Config {
	return battle.Config{
		Mode:          mode,
		TurnTimeLimit: o.TurnTimeLimit,
		RankPolicy:    o.RankPolicy,
		Now:           o.Now,
	}
}

type nopRecorder struct{}

func (nopRecorder) SaveMatch(battle.Record)         {}
func (nopRecorder) RecordResult(domain.MatchResult) {}

type room struct {
	id          string
	host        Player
	mode        battle.Mode
	opts        RoomOptions
	match       *battle.Match
	players     map[string]Player
	parentLobby Lobby

	stopTurnTimer    func() bool
	idleSince        time.Time
	resultRecorded   bool
	removalRequested bool
	dataSendTasks    []dataSendTask

	inbox        chan intentEnvelope
	joinReqs     chan roomJoinRequest
	removeMe     chan Player
	snapshotReqs chan snapshotRequest
	expiries     chan turnExpiry
	ticks        chan time.Time
	pingPlayers  chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

func newRoom(opts RoomOptions) *room {
	opts = opts.withDefaults()
	return &room{
		opts:         opts,
		players:      map[string]Player{},
		idleSince:    opts.Now(),
		inbox:        make(chan intentEnvelope, 64),
		joinReqs:     make(chan roomJoinRequest, 8),
		removeMe:     make(chan Player, 8),
		snapshotReqs: make(chan snapshotRequest, 32),
		expiries:     make(chan turnExpiry, 1),
		ticks:        make(chan time.Time, 1),
		pingPlayers:  make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// NewRoom seats host in a room of the given mode. The match itself is created once the lobby
// assigns the room its id.
func NewRoom(host Player, mode battle.Mode, opts RoomOptions) (*room, error) {
	mode, err := battle.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	r := newRoom(opts)
	r.host = host
	r.mode = mode
	r.players[host.Id()] = host
	host.SetRoom(r)
	return r, nil
}

// RestoreRoom loads a stored match into a room nobody is connected to. A record that no longer
// replays still gives a room, holding the aborted match.
func RestoreRoom(rec battle.Record, opts RoomOptions) (*room, error) {
	r := newRoom(opts)
	m, err := battle.Restore(rec, r.opts.matchConfig(rec.Mode))
	if m == nil {
		return nil, err
	}
	if err != nil {
		log.Warn().Str("room", rec.ID).Err(err).Msg("stored match aborted on restore")
	}
	r.id = m.ID()
	r.mode = m.Mode()
	r.match = m
	// the previous process already recorded the result of a match that finished there
	r.resultRecorded = m.Phase() == battle.PhaseFinished && err == nil
	return r, nil
}

func (r *room) Id() string             { return r.id }
func (r *room) Done() <-chan struct{}  { return r.done }
func (r *room) SetParentLobby(l Lobby) { r.parentLobby = l }

func (r *room) RequestJoin(jreq roomJoinRequest) {
	select {
	case r.joinReqs <- jreq:
	default:
		jreq.errChan <- ErrRoomBusy
		close(jreq.errChan)
	}
}

// SetId names a fresh room and opens its match. Restored rooms keep the id of their record.
func (r *room) SetId(id string) {
	if r.match != nil {
		return
	}
	r.id = id
	host := battle.Participant{ID: r.host.Id(), Name: r.host.Username(), RankPoints: r.host.RankPoints()}
	m, err := battle.NewMatch(id, host, r.opts.matchConfig(r.mode))
	if err != nil {
		// NewRoom already validated the mode
		panic(fmt.Sprintf("room %s: %v", id, err))
	}
	r.match = m
	r.sendSnapshot(r.host)
}

func (r *room) RequestSnapshot(sreq snapshotRequest) {
	select {
	case r.snapshotReqs <- sreq:
	default:
		sreq.resp <- snapshotResponse{err: ErrRoomBusy}
	}
}

func (r *room) Send(ctx context.Context, e intentEnvelope) {
	select {
	case r.inbox <- e:
	case <-ctx.Done():
	case <-r.done:
	}
}

func (r *room) RemoveMe(p Player) {
	select {
	case r.removeMe <- p:
	case <-r.done:
	}
}

func (r *room) Tick(now time.Time) {
	select {
	case r.ticks <- now:
	default:
	}
}

func (r *room) PingPlayers() {
	select {
	case r.pingPlayers <- struct{}{}:
	default:
	}
}

// CloseAndRelease stops the game loop. Only the lobby calls it, after which it never ticks
// or pings the room again.
func (r *room) CloseAndRelease() {
	r.closeOnce.Do(func() {
		close(r.ticks)
		close(r.pingPlayers)
	})
}

func (r *room) persist() {
	r.opts.Recorder.SaveMatch(r.match.Record())
}
