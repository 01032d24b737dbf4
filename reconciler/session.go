package reconciler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"boardship/battle"
	"boardship/protocol"
)

var (
	// ErrResyncRequired means the session no longer trusts its projection. The only way back
	// is Sync or Replace.
	ErrResyncRequired = errors.New("resync-required")
	ErrViewerMismatch = errors.New("viewer-mismatch")
	ErrCellPending    = errors.New("cell-pending")
)

// SnapshotFetcher returns the authoritative view of the session's match for its viewer.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (battle.View, error)
}

type SnapshotFetcherFunc func(ctx context.Context) (battle.View, error)

func (f SnapshotFetcherFunc) FetchSnapshot(ctx context.Context) (battle.View, error) {
	return f(ctx)
}

// Session is one client's context for one match: who is looking, how to fetch the truth, and
// the projection built from it. All methods are safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	viewer  string
	fetcher SnapshotFetcher
	proj    Projection
	loaded  bool
	stale   bool
	pending []battle.Cell
}

func NewSession(viewer string, fetcher SnapshotFetcher) *Session {
	return &Session{viewer: viewer, fetcher: fetcher}
}

func (s *Session) Viewer() string { return s.viewer }

// Projection returns a copy of the current projection and whether it is trusted.
func (s *Session) Projection() (Projection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proj.clone(), s.loaded && !s.stale
}

func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loaded || s.stale
}

// Pending lists the cells marked by MarkPending that no result has confirmed yet.
func (s *Session) Pending() []battle.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending)
}

// Sync fetches a snapshot and replaces the projection with it.
func (s *Session) Sync(ctx context.Context) error {
	v, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetching snapshot: %w", err)
	}
	return s.Replace(v)
}

// Replace installs the projection of v wholesale, dropping every optimistic mark. Replacing
// twice with the same view is a no-op.
func (s *Session) Replace(v battle.View) error {
	if v.Viewer != s.viewer {
		return fmt.Errorf("%w: view for %q, session for %q", ErrViewerMismatch, v.Viewer, s.viewer)
	}
	p := FromView(v)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.proj = p
	s.loaded = true
	s.stale = false
	s.pending = nil
	return nil
}

// MarkPending records an attack the client sent but the server has not answered.
func (s *Session) MarkPending(c battle.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.stale {
		return ErrResyncRequired
	}
	if s.proj.Phase != battle.PhasePlaying {
		return fmt.Errorf("%w: match is %s", battle.ErrWrongPhase, s.proj.Phase)
	}
	if s.proj.CurrentTurn != s.viewer {
		return battle.ErrNotYourTurn
	}
	if c.Row < 0 || c.Row >= battle.BoardSize || c.Col < 0 || c.Col >= battle.BoardSize {
		return fmt.Errorf("%w: %s", battle.ErrOutOfBounds, c)
	}
	if s.proj.Offense.At(c) != Unknown {
		return fmt.Errorf("%w: %s", battle.ErrCellAlreadyAttacked, c)
	}
	if slices.Contains(s.pending, c) {
		return fmt.Errorf("%w: %s", ErrCellPending, c)
	}
	s.pending = append(s.pending, c)
	return nil
}

// Apply patches the projection with one broadcast event. Anything that does not fit the
// current projection marks the session stale and returns ErrResyncRequired; so does every
// event received while stale.
func (s *Session) Apply(e protocol.Event) error {
	if snap, ok := e.(*protocol.SnapshotEvent); ok {
		return s.Replace(snap.View)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.stale {
		return ErrResyncRequired
	}
	if err := s.apply(e); err != nil {
		s.stale = true
		s.pending = nil
		return fmt.Errorf("%w: %s: %w", ErrResyncRequired, e.Type(), err)
	}
	return nil
}

func (s *Session) apply(e protocol.Event) error {
	p := &s.proj
	switch e := e.(type) {
	case *protocol.PlayerJoinedEvent:
		if e.PlayerID == s.viewer {
			return nil
		}
		if p.Opponent != nil {
			if p.Opponent.ID != e.PlayerID {
				return fmt.Errorf("second opponent %q", e.PlayerID)
			}
			return nil
		}
		if p.Phase != battle.PhaseWaiting {
			return fmt.Errorf("join while %s", p.Phase)
		}
		p.Opponent = &battle.PlayerView{ID: e.PlayerID, Name: e.Name}
		p.Phase = battle.PhasePlacement

	case *protocol.PlayerReadyEvent:
		var who *battle.PlayerView
		switch {
		case e.PlayerID == s.viewer:
			who = &p.Self
		case p.Opponent != nil && p.Opponent.ID == e.PlayerID:
			who = p.Opponent
		default:
			return fmt.Errorf("ready from stranger %q", e.PlayerID)
		}
		if who.Ready {
			return nil
		}
		if p.Phase != battle.PhasePlacement && p.Phase != battle.PhaseReady {
			return fmt.Errorf("ready while %s", p.Phase)
		}
		if who == &p.Self {
			// our own fleet is only learned from a snapshot
			return errors.New("own fleet confirmed elsewhere")
		}
		who.Ready = true
		p.Phase = battle.PhaseReady

	case *protocol.GameStartEvent:
		if p.Phase == battle.PhasePlaying {
			return nil
		}
		if p.Phase != battle.PhaseReady && p.Phase != battle.PhasePlacement {
			return fmt.Errorf("start while %s", p.Phase)
		}
		if p.Opponent == nil || !p.Self.Ready {
			return errors.New("start without both fleets")
		}
		p.Opponent.Ready = true
		p.Phase = battle.PhasePlaying
		p.Mode = e.GameMode
		p.CurrentTurn = e.FirstPlayer
		p.TurnTimeLimitMs = e.TurnTimeLimitMs
		p.TurnDeadline = utc(e.Deadline)

	case *protocol.AttackResultEvent:
		return s.applyAttack(e)

	case *protocol.AttackErrorEvent:
		return fmt.Errorf("attack at %s rejected: %s", e.Cell, e.Reason)

	case *protocol.TurnChangeEvent:
		if p.Phase != battle.PhasePlaying {
			return fmt.Errorf("turn change while %s", p.Phase)
		}
		if p.CurrentTurn != e.PreviousPlayer && p.CurrentTurn != e.CurrentPlayer {
			return fmt.Errorf("turn passed by %q, holder is %q", e.PreviousPlayer, p.CurrentTurn)
		}
		p.CurrentTurn = e.CurrentPlayer
		p.TurnDeadline = utc(e.Deadline)

	case *protocol.TurnKeepEvent:
		if p.Phase != battle.PhasePlaying {
			return fmt.Errorf("turn keep while %s", p.Phase)
		}
		if p.CurrentTurn != e.CurrentPlayer {
			return fmt.Errorf("turn kept by %q, holder is %q", e.CurrentPlayer, p.CurrentTurn)
		}
		p.TurnDeadline = utc(e.Deadline)

	case *protocol.GameOverEvent:
		r := battle.Result{Winner: e.Winner, Loser: e.Loser, Reason: e.Reason, Message: e.Message, RankDelta: e.RPDelta}
		if p.Phase == battle.PhaseFinished {
			if p.Result == nil || p.Result.Winner != r.Winner || p.Result.Reason != r.Reason {
				return errors.New("conflicting game over")
			}
			return nil
		}
		p.Phase = battle.PhaseFinished
		p.CurrentTurn = ""
		p.TurnDeadline = nil
		r.RankDelta = maps.Clone(r.RankDelta)
		p.Result = &r
		s.pending = nil

	case *protocol.IntentRejectedEvent:
		return fmt.Errorf("%s rejected: %s", e.Intent, e.Reason)

	case *protocol.PresenceEvent:
		// connectivity is not part of the projection

	default:
		return fmt.Errorf("unhandled event %T", e)
	}
	return nil
}

func (s *Session) applyAttack(e *protocol.AttackResultEvent) error {
	p := &s.proj
	mark := markOf(e.IsHit)

	switch {
	case e.PlayerID == s.viewer:
		s.pending = slices.DeleteFunc(s.pending, func(c battle.Cell) bool { return c == e.Cell })
		if prev := p.Offense.At(e.Cell); prev != Unknown {
			if prev != mark {
				return fmt.Errorf("conflicting result at %s", e.Cell)
			}
			return nil
		}
		if p.Phase != battle.PhasePlaying {
			return fmt.Errorf("attack result while %s", p.Phase)
		}
		if p.CurrentTurn != s.viewer {
			return fmt.Errorf("our attack at %s while %q holds the turn", e.Cell, p.CurrentTurn)
		}
		if !p.Offense.set(e.Cell, mark) {
			return fmt.Errorf("cell %s off the board", e.Cell)
		}
		if e.ShipSunk != nil && !slices.ContainsFunc(p.SunkEnemyShips, func(sh battle.Ship) bool { return sameShip(sh, *e.ShipSunk) }) {
			sunk := *e.ShipSunk
			sunk.Positions = slices.Clone(sunk.Positions)
			p.SunkEnemyShips = append(p.SunkEnemyShips, sunk)
			slices.SortFunc(p.SunkEnemyShips, compareShips)
		}

	case p.Opponent != nil && e.PlayerID == p.Opponent.ID:
		if prev := p.Defense.At(e.Cell); prev != Unknown {
			if prev != mark {
				return fmt.Errorf("conflicting result at %s", e.Cell)
			}
			return nil
		}
		if p.Phase != battle.PhasePlaying {
			return fmt.Errorf("attack result while %s", p.Phase)
		}
		if p.CurrentTurn != e.PlayerID {
			return fmt.Errorf("attack at %s while %q holds the turn", e.Cell, p.CurrentTurn)
		}
		if !p.Defense.set(e.Cell, mark) {
			return fmt.Errorf("cell %s off the board", e.Cell)
		}
		if e.IsHit {
			if !s.hitOwnShip(e.Cell) {
				return fmt.Errorf("hit at %s misses every ship of ours", e.Cell)
			}
		}

	default:
		return fmt.Errorf("attack by stranger %q", e.PlayerID)
	}
	return nil
}

func (s *Session) hitOwnShip(c battle.Cell) bool {
	for i := range s.proj.Fleet {
		sv := &s.proj.Fleet[i]
		if slices.Contains(sv.Positions, c) {
			sv.Hits++
			sv.Sunk = sv.Hits >= sv.Size
			return true
		}
	}
	return false
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
