package game

import (
	"boardship/domain"
	"boardship/protocol"
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	playerInboxSize   = 64
	intentsPerSecond  = 4
	intentsBurstLimit = 8
)

type player struct {
	id          string
	username    string
	rankPoints  int
	codec       protocol.Codec
	rateLimiter *rate.Limiter
	inbox       chan []byte
	pingChan    chan struct{}
	room        Room
	ctx         context.Context
	cancelCtx   context.CancelFunc
}

func NewPlayer(id, username string, codec protocol.Codec) *player {
	ctx, cancel := context.WithCancel(context.Background())
	return &player{
		id:          id,
		username:    username,
		codec:       codec,
		rateLimiter: rate.NewLimiter(intentsPerSecond, intentsBurstLimit),
		inbox:       make(chan []byte, playerInboxSize),
		pingChan:    make(chan struct{}, 1),
		ctx:         ctx,
		cancelCtx:   cancel,
	}
}

// NewUserPlayer is NewPlayer for an account, carrying its ranking points into the match.
func NewUserPlayer(user domain.User, codec protocol.Codec) *player {
	p := NewPlayer(user.Id, user.Username, codec)
	p.rankPoints = user.RankingPoints
	return p
}

func (p *player) Id() string            { return p.id }
func (p *player) RankPoints() int       { return p.rankPoints }
func (p *player) Username() string      { return p.username }
func (p *player) Codec() protocol.Codec { return p.codec }
func (p *player) SetRoom(r Room)        { p.room = r }
func (p *player) CancelAndRelease()     { p.cancelCtx() }

// Send queues data for the write pump. A full queue means the client stopped reading.
func (p *player) Send(data []byte) error {
	select {
	case p.inbox <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (p *player) Ping() error {
	select {
	case p.pingChan <- struct{}{}:
	default:
	}
	return nil
}

// ReadPump decodes intents and forwards them to the room until the socket fails or the
// player is released. Undecodable frames and spam are answered directly.
func (p *player) ReadPump(socket WebsocketConnection) {
	defer socket.Close()

	for {
		data, err := socket.Read()
		if err != nil {
			if p.ctx.Err() == nil {
				p.room.RemoveMe(p)
			}
			return
		}

		intent, err := p.codec.DecodeIntent(data)
		if err != nil {
			log.Debug().Str("player", p.id).Err(err).Msg("undecodable intent")
			p.reject("", err)
			continue
		}

		// leaving is never throttled, a dropped leave would keep the match going
		if intent.Type() != protocol.TypeLeave && !p.rateLimiter.Allow() {
			log.Debug().Str("player", p.id).Str("intent", string(intent.Type())).Msg("intent rate limited")
			p.rejectIntent(intent, protocol.ErrRateLimited)
			continue
		}

		p.room.Send(p.ctx, intentEnvelope{intent: intent, from: p})
		if p.ctx.Err() != nil {
			return
		}
	}
}

func (p *player) reject(intent protocol.MessageType, err error) {
	p.sendDirect(&protocol.IntentRejectedEvent{Intent: intent, Reason: protocol.Reason(err)})
}

// rejectIntent answers the way the room would: attacks get an attack_error for their cell.
func (p *player) rejectIntent(intent protocol.Intent, err error) {
	if attack, ok := intent.(*protocol.AttackIntent); ok {
		p.sendDirect(&protocol.AttackErrorEvent{Cell: attack.Cell, Reason: protocol.Reason(err)})
		return
	}
	p.reject(intent.Type(), err)
}

func (p *player) sendDirect(e protocol.Event) {
	data, encErr := p.codec.EncodeEvent(e)
	if encErr != nil {
		return
	}
	if err := p.Send(data); err != nil {
		log.Debug().Str("player", p.id).Err(err).Msg("dropping rejection")
	}
}

// WritePump drains the inbox and the ping requests into the socket. A failing socket is
// reported to the room; a released player just stops.
func (p *player) WritePump(socket WebsocketConnection) {
	defer socket.Close()

	for {
		var err error
		select {
		case <-p.ctx.Done():
			return
		case data, ok := <-p.inbox:
			if !ok {
				return
			}
			err = socket.Write(data)
		case _, ok := <-p.pingChan:
			if !ok {
				return
			}
			err = socket.Ping()
		}
		if err != nil {
			if p.ctx.Err() == nil {
				p.room.RemoveMe(p)
			}
			return
		}
	}
}
