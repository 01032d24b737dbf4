package battle

import "time"

// DefaultSpeedTurnLimit is the per-turn budget of speed matches.
const DefaultSpeedTurnLimit = 3 * time.Second

// TurnClock holds the deadline of the current turn. It never banks unused time: every Start
// arms a fresh full-length turn.
type TurnClock struct {
	limit    time.Duration
	deadline time.Time
}

func NewTurnClock(limit time.Duration) *TurnClock {
	if limit <= 0 {
		limit = DefaultSpeedTurnLimit
	}
	return &TurnClock{limit: limit}
}

func (c *TurnClock) Start(now time.Time) time.Time {
	c.deadline = now.Add(c.limit)
	return c.deadline
}

func (c *TurnClock) Stop() {
	c.deadline = time.Time{}
}

func (c *TurnClock) Running() bool {
	return !c.deadline.IsZero()
}

// Expired reports whether a running clock has reached its deadline.
func (c *TurnClock) Expired(now time.Time) bool {
	return c.Running() && !now.Before(c.deadline)
}

func (c *TurnClock) Deadline() time.Time {
	return c.deadline
}

func (c *TurnClock) Limit() time.Duration {
	return c.limit
}
