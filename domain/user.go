package domain

import (
	"strconv"
	"time"
)

type User struct {
	Id            string
	Username      string
	RankingPoints int
}

// MatchResult is the outcome of one finished match as recorded for both participants.
// Delta fields are nil outside ranked mode.
type MatchResult struct {
	MatchID     string
	Mode        string
	Reason      string
	WinnerID    string
	LoserID     string
	WinnerHits  int
	LoserHits   int
	WinnerDelta *int
	LoserDelta  *int
	Duration    time.Duration
	PlayedAt    time.Time
}

// Score renders the "hits-hits" score seen by the winner (forWinner) or the loser.
func (r MatchResult) Score(forWinner bool) string {
	a, b := r.WinnerHits, r.LoserHits
	if !forWinner {
		a, b = b, a
	}
	s := strconv.Itoa(a) + "-" + strconv.Itoa(b)
	if r.Reason == "forfeit" {
		s += " (forfeit)"
	}
	return s
}
