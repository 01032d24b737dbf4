package storage

import (
	"boardship/battle"
	"boardship/domain"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// invalid_text_representation, raised for ids that are not uuids
const pgInvalidTextRepresentation = "22P02"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func (pgr *PostgresRepo) Ping(ctx context.Context) error {
	return pgr.pool.Ping(ctx)
}

func wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
}

func (pgr *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := pgr.pool.QueryRow(ctx, "SELECT username, ranking_points FROM users WHERE id = $1", id)

	err := row.Scan(&user.Username, &user.RankingPoints)

	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.User{}, domain.ErrUserNotFound
		case errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation:
			return domain.User{}, domain.ErrUserNotFound
		default:
			return domain.User{}, wrap(err)
		}
	}

	return user, nil
}

// SaveMatch upserts the latest record of a match.
func (pgr *PostgresRepo) SaveMatch(ctx context.Context, rec battle.Record) error {
	var finishedAt *time.Time
	if !rec.FinishedAt.IsZero() {
		finishedAt = &rec.FinishedAt
	}

	_, err := pgr.pool.Exec(ctx, `
		INSERT INTO matches (id, mode, phase, record, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			record = EXCLUDED.record,
			finished_at = EXCLUDED.finished_at,
			updated_at = now()`,
		rec.ID, string(rec.Mode), string(rec.Phase), rec, rec.CreatedAt, finishedAt)
	if err != nil {
		return wrap(err)
	}
	return nil
}

func (pgr *PostgresRepo) LoadMatch(ctx context.Context, id string) (battle.Record, error) {
	var rec battle.Record

	err := pgr.pool.QueryRow(ctx, "SELECT record FROM matches WHERE id = $1", id).Scan(&rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return battle.Record{}, domain.ErrMatchNotFound
		}
		return battle.Record{}, wrap(err)
	}
	return rec, nil
}

// PurgeFinishedMatches deletes the records of matches that finished before the given time.
// Result history is kept.
func (pgr *PostgresRepo) PurgeFinishedMatches(ctx context.Context, before time.Time) (int64, error) {
	tag, err := pgr.pool.Exec(ctx, "DELETE FROM matches WHERE finished_at IS NOT NULL AND finished_at < $1", before)
	if err != nil {
		return 0, wrap(err)
	}
	return tag.RowsAffected(), nil
}

// RecordResult stores one history row per participant and applies ranked point changes, all
// in one transaction. Recording the same match twice is a no-op.
func (pgr *PostgresRepo) RecordResult(ctx context.Context, res domain.MatchResult) error {
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		rows := []struct {
			user, opponent, result string
			forWinner              bool
			delta                  *int
		}{
			{res.WinnerID, res.LoserID, "won", true, res.WinnerDelta},
			{res.LoserID, res.WinnerID, "lost", false, res.LoserDelta},
		}

		for _, r := range rows {
			tag, err := tx.Exec(ctx, `
				INSERT INTO match_results
					(match_id, user_id, opponent_id, mode, result, score, reason, points_change, duration_ms, played_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (match_id, user_id) DO NOTHING`,
				res.MatchID, r.user, r.opponent, res.Mode, r.result, res.Score(r.forWinner), res.Reason,
				r.delta, res.Duration.Milliseconds(), res.PlayedAt)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				// already recorded, points were applied back then
				continue
			}
			if r.delta == nil {
				continue
			}
			if _, err := tx.Exec(ctx,
				"UPDATE users SET ranking_points = GREATEST(0, ranking_points + $2) WHERE id = $1",
				r.user, *r.delta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrap(err)
	}
	return nil
}
