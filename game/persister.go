package game

import (
	"boardship/battle"
	"boardship/domain"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MatchStore is the storage the persister writes through to.
type MatchStore interface {
	SaveMatch(ctx context.Context, rec battle.Record) error
	RecordResult(ctx context.Context, res domain.MatchResult) error
}

const storeTimeout = 5 * time.Second

// persister is the single writer between rooms and the store. Records are coalesced per
// match, so a slow store only ever writes the latest state of each match.
type persister struct {
	store   MatchStore
	locker  sync.Mutex
	records map[string]battle.Record
	order   []string
	results []domain.MatchResult
	wake    chan struct{}
	stopped chan struct{}
}

func NewPersister(store MatchStore) *persister {
	return &persister{
		store:   store,
		records: map[string]battle.Record{},
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

func (p *persister) SaveMatch(rec battle.Record) {
	p.locker.Lock()
	if _, queued := p.records[rec.ID]; !queued {
		p.order = append(p.order, rec.ID)
	}
	p.records[rec.ID] = rec
	p.locker.Unlock()
	p.signal()
}

func (p *persister) RecordResult(res domain.MatchResult) {
	p.locker.Lock()
	p.results = append(p.results, res)
	p.locker.Unlock()
	p.signal()
}

func (p *persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes queued work until ctx is cancelled, then drains what is left.
func (p *persister) Run(ctx context.Context) {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

// Stopped is closed once Run has drained the queue and returned.
func (p *persister) Stopped() <-chan struct{} {
	return p.stopped
}

func (p *persister) drain() {
	for {
		p.locker.Lock()
		order, records, results := p.order, p.records, p.results
		p.order, p.records, p.results = nil, map[string]battle.Record{}, nil
		p.locker.Unlock()

		if len(order) == 0 && len(results) == 0 {
			return
		}
		for _, id := range order {
			p.write("match", id, func(ctx context.Context) error {
				return p.store.SaveMatch(ctx, records[id])
			})
		}
		// a result references its match row, so results go after the records of the same pass
		for _, res := range results {
			p.write("result", res.MatchID, func(ctx context.Context) error {
				return p.store.RecordResult(ctx, res)
			})
		}
	}
}

func (p *persister) write(kind, id string, f func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := f(ctx); err != nil {
		log.Error().Str("room", id).Str("kind", kind).Err(err).Msg("persisting")
	}
}

// matchResult summarizes a finished match for the result history. Matches without a winner
// (aborted, or abandoned before anyone joined) have no result.
func matchResult(m *battle.Match) (domain.MatchResult, bool) {
	res := m.Result()
	if res == nil || res.Winner == "" {
		return domain.MatchResult{}, false
	}
	out := domain.MatchResult{
		MatchID:    m.ID(),
		Mode:       string(m.Mode()),
		Reason:     string(res.Reason),
		WinnerID:   res.Winner,
		LoserID:    res.Loser,
		WinnerHits: m.HitsLanded(res.Winner),
		LoserHits:  m.HitsLanded(res.Loser),
		PlayedAt:   m.FinishedAt(),
	}
	if !m.StartedAt().IsZero() {
		out.Duration = m.FinishedAt().Sub(m.StartedAt())
	}
	if d, ok := res.RankDelta[res.Winner]; ok {
		out.WinnerDelta = &d
	}
	if d, ok := res.RankDelta[res.Loser]; ok {
		out.LoserDelta = &d
	}
	return out, true
}
