package game

import (
	"boardship/battle"
	"boardship/protocol"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// GameLoop is the only goroutine that touches the room's match. Every handler queues its
// events, and the queue is flushed once the transition is complete.
func (r *room) GameLoop() {
	defer close(r.done)

	r.afterTransition()
	r.flush()

	for {
		select {
		case env := <-r.inbox:
			r.handleIntent(env)

		case jreq := <-r.joinReqs:
			r.handleJoinRequest(jreq)

		case p := <-r.removeMe:
			r.handleRemovePlayer(p)

		case sreq := <-r.snapshotReqs:
			r.handleSnapshotRequest(sreq)

		case exp := <-r.expiries:
			r.handleTurnExpiry(exp)

		case now, ok := <-r.ticks:
			if !ok {
				r.release()
				return
			}
			r.handleTick(now)

		case _, ok := <-r.pingPlayers:
			if !ok {
				r.release()
				return
			}
			r.handlePingPlayers()
		}
		r.flush()
	}
}

func (r *room) handleIntent(env intentEnvelope) {
	p := env.from
	if r.players[p.Id()] != p {
		// sent by a connection that was replaced since
		return
	}

	switch intent := env.intent.(type) {
	case *protocol.ReadyIntent:
		r.handleReady(p, intent)
	case *protocol.AttackIntent:
		r.handleAttack(p, intent)
	case *protocol.TimeoutIntent:
		r.handleTimeout(p)
	case *protocol.LeaveIntent:
		r.handleLeave(p)
	case *protocol.SnapshotIntent:
		r.sendSnapshot(p)
	}
}

func (r *room) handleReady(p Player, intent *protocol.ReadyIntent) {
	out, err := r.match.SubmitFleet(p.Id(), intent.Ships)
	if err != nil {
		r.reject(p, intent.Type(), err)
		return
	}

	// the sender learns its accepted fleet from the snapshot, everyone else only learns it exists
	r.sendSnapshot(p)
	r.broadcast(&protocol.PlayerReadyEvent{PlayerID: p.Id()})
	if out.Started {
		r.broadcast(&protocol.GameStartEvent{
			FirstPlayer:     out.FirstPlayer,
			GameMode:        r.match.Mode(),
			TurnTimeLimitMs: r.match.TurnTimeLimit().Milliseconds(),
			Deadline:        timePtr(out.Deadline),
		})
	}
	r.afterTransition()
}

func (r *room) handleAttack(p Player, intent *protocol.AttackIntent) {
	res, err := r.match.Attack(p.Id(), intent.Cell)
	if errors.Is(err, battle.ErrMatchAborted) {
		log.Error().Str("room", r.id).Str("player", p.Id()).Err(err).Msg("match aborted")
		r.broadcast(protocol.MakeGameOver(*r.match.Result()))
		r.afterTransition()
		return
	}
	if err != nil {
		r.rejectAttack(p, intent.Cell, err)
		return
	}

	r.broadcast(&protocol.AttackResultEvent{
		PlayerID: res.Attacker,
		Cell:     res.Cell,
		IsHit:    res.Hit,
		ShipSunk: res.Sunk,
	})
	if res.Finished != nil {
		r.broadcast(protocol.MakeGameOver(*res.Finished))
	} else {
		r.broadcast(protocol.MakeTurnEvent(res.Turn, protocol.TurnReasonMiss))
	}
	r.afterTransition()
}

// rejectAttack answers the attacker only. A repeated shot also carries what the cell holds.
func (r *room) rejectAttack(p Player, c battle.Cell, err error) {
	e := &protocol.AttackErrorEvent{Cell: c, Reason: protocol.Reason(err)}
	if errors.Is(err, battle.ErrCellAlreadyAttacked) {
		if v, snapErr := r.match.Snapshot(p.Id()); snapErr == nil {
			for _, a := range v.OutgoingAttacks {
				if a.Cell == c {
					hit := a.IsHit
					e.AttackedBy = p.Id()
					e.IsHit = &hit
				}
			}
		}
	}
	r.sendTo(p, e)
}

func (r *room) handleTimeout(p Player) {
	turn, err := r.match.Timeout(p.Id())
	if err != nil {
		r.reject(p, protocol.TypeTimeout, err)
		return
	}
	r.broadcast(protocol.MakeTurnEvent(turn, protocol.TurnReasonTimeout))
	r.afterTransition()
}

// handleTurnExpiry applies a turn timer that fired. Timers armed for an earlier turn are
// dropped: the holder and deadline they carry no longer match the match.
func (r *room) handleTurnExpiry(exp turnExpiry) {
	deadline, ok := r.match.Deadline()
	if !ok || !deadline.Equal(exp.deadline) || r.match.CurrentTurn() != exp.holder {
		return
	}
	turn, err := r.match.Timeout(exp.holder)
	if errors.Is(err, battle.ErrDeadlineNotReached) {
		r.armTurnTimer()
		return
	}
	if err != nil {
		log.Debug().Str("room", r.id).Err(err).Msg("turn expiry dropped")
		return
	}
	r.broadcast(protocol.MakeTurnEvent(turn, protocol.TurnReasonTimeout))
	r.afterTransition()
}

func (r *room) handleLeave(p Player) {
	res, err := r.match.Forfeit(p.Id(), fmt.Sprintf("%s left the game", p.Username()))
	if err != nil {
		r.reject(p, protocol.TypeLeave, err)
		return
	}
	r.broadcast(protocol.MakeGameOver(res))
	r.afterTransition()
}

// handleJoinRequest seats a new opponent, or swaps in the new connection of a participant.
// A participant never holds two connections: the older one is released.
func (r *room) handleJoinRequest(jreq roomJoinRequest) {
	p := jreq.player
	id := p.Id()

	if r.match.IsParticipant(id) {
		if old, ok := r.players[id]; ok && old != p {
			log.Info().Str("room", r.id).Str("player", id).Msg("replacing previous connection")
			old.CancelAndRelease()
		}
		r.seat(p, jreq)
		r.sendSnapshot(p)
		r.broadcastExcept(p, &protocol.PresenceEvent{PlayerID: id, Connected: true})
		return
	}

	if err := r.match.Join(battle.Participant{ID: id, Name: p.Username(), RankPoints: p.RankPoints()}); err != nil {
		jreq.errChan <- err
		close(jreq.errChan)
		return
	}
	r.seat(p, jreq)
	r.sendSnapshot(p)
	r.broadcastExcept(p, &protocol.PlayerJoinedEvent{PlayerID: id, Name: p.Username()})
	r.afterTransition()
}

func (r *room) seat(p Player, jreq roomJoinRequest) {
	r.players[p.Id()] = p
	p.SetRoom(r)
	close(jreq.errChan)
}

// handleRemovePlayer drops a dead connection. Disconnecting is not leaving: the match waits
// for the participant to come back.
func (r *room) handleRemovePlayer(p Player) {
	p.CancelAndRelease()
	if r.players[p.Id()] != p {
		return
	}
	delete(r.players, p.Id())
	if len(r.players) == 0 {
		r.idleSince = r.opts.Now()
	}
	r.broadcast(&protocol.PresenceEvent{PlayerID: p.Id(), Connected: false})
}

func (r *room) handleSnapshotRequest(sreq snapshotRequest) {
	v, err := r.match.Snapshot(sreq.viewer)
	sreq.resp <- snapshotResponse{view: v, err: err}
}

// handleTick asks the lobby to drop the room once it finished long enough ago, or once
// nobody has been connected for the idle timeout. The stored record stays restorable.
func (r *room) handleTick(now time.Time) {
	if r.removalRequested || r.parentLobby == nil {
		return
	}
	switch {
	case r.match.Phase() == battle.PhaseFinished && now.Sub(r.match.FinishedAt()) >= r.opts.FinishedRetention:
	case len(r.players) == 0 && now.Sub(r.idleSince) >= r.opts.IdleTimeout:
	default:
		return
	}
	log.Debug().Str("room", r.id).Str("phase", string(r.match.Phase())).Msg("releasing room")
	r.removalRequested = true
	r.parentLobby.RemoveRoom(r.id)
}

func (r *room) handlePingPlayers() {
	for _, p := range r.players {
		p.Ping()
	}
}

// afterTransition runs after every accepted state change.
func (r *room) afterTransition() {
	r.armTurnTimer()
	r.persist()
	if r.match.Phase() != battle.PhaseFinished || r.resultRecorded {
		return
	}
	r.resultRecorded = true
	if res, ok := matchResult(r.match); ok {
		r.opts.Recorder.RecordResult(res)
	}
}

func (r *room) armTurnTimer() {
	r.stopTimer()
	deadline, ok := r.match.Deadline()
	if !ok {
		return
	}
	exp := turnExpiry{holder: r.match.CurrentTurn(), deadline: deadline}
	r.stopTurnTimer = r.opts.Timers.AfterFunc(deadline.Sub(r.opts.Now()), func() {
		select {
		case r.expiries <- exp:
		case <-r.done:
		}
	})
}

func (r *room) stopTimer() {
	if r.stopTurnTimer != nil {
		r.stopTurnTimer()
		r.stopTurnTimer = nil
	}
}

// release disconnects everyone and answers the requests still queued, as if the room were
// already gone.
func (r *room) release() {
	r.stopTimer()
	for id, p := range r.players {
		p.CancelAndRelease()
		delete(r.players, id)
	}
	r.dataSendTasks = nil
	for {
		select {
		case jreq := <-r.joinReqs:
			jreq.errChan <- ErrRoomNotFound
			close(jreq.errChan)
		case sreq := <-r.snapshotReqs:
			sreq.resp <- snapshotResponse{err: ErrRoomNotFound}
		default:
			return
		}
	}
}

func (r *room) sendTo(p Player, e protocol.Event) {
	r.dataSendTasks = append(r.dataSendTasks, dataSendTask{to: p, event: e})
}

func (r *room) broadcast(e protocol.Event) {
	for _, p := range r.players {
		r.sendTo(p, e)
	}
}

func (r *room) broadcastExcept(except Player, e protocol.Event) {
	for _, p := range r.players {
		if p != except {
			r.sendTo(p, e)
		}
	}
}

func (r *room) sendSnapshot(p Player) {
	v, err := r.match.Snapshot(p.Id())
	if err != nil {
		log.Error().Str("room", r.id).Str("player", p.Id()).Err(err).Msg("snapshot for seated player")
		return
	}
	r.sendTo(p, &protocol.SnapshotEvent{View: v})
}

func (r *room) reject(p Player, intent protocol.MessageType, err error) {
	log.Debug().Str("room", r.id).Str("player", p.Id()).Str("intent", string(intent)).Err(err).Msg("intent rejected")
	r.sendTo(p, &protocol.IntentRejectedEvent{Intent: intent, Reason: protocol.Reason(err)})
}

// flush encodes queued events per recipient codec. A recipient whose buffer is full is
// dropped like a dead connection; it resyncs from a snapshot when it comes back.
func (r *room) flush() {
	for len(r.dataSendTasks) > 0 {
		tasks := r.dataSendTasks
		r.dataSendTasks = nil
		for _, task := range tasks {
			if r.players[task.to.Id()] != task.to {
				continue
			}
			data, err := task.to.Codec().EncodeEvent(task.event)
			if err != nil {
				log.Error().Str("room", r.id).Str("event", string(task.event.Type())).Err(err).Msg("encoding event")
				continue
			}
			if err := task.to.Send(data); err != nil {
				log.Warn().Str("room", r.id).Str("player", task.to.Id()).Err(err).Msg("dropping slow player")
				r.handleRemovePlayer(task.to)
			}
		}
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
