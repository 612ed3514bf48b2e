package postgres

import (
	"context"
	"fmt"

	"assessment-engine/internal/domain"
	"github.com/jackc/pgx/v4"
)

// ReplaceStandings serializes recomputes of one test on a transaction-scoped
// advisory lock, then rewrites the test's standings from the attempts it read
// inside the same transaction and bumps the test's standings generation.
func (s *Store) ReplaceStandings(ctx context.Context, testID string, rank func([]domain.Attempt) []domain.Standing) (domain.Leaderboard, error) {
	lb := domain.Leaderboard{TestID: testID}
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "standings:"+testID); err != nil {
			return fmt.Errorf("lock standings: %w", err)
		}
		if err := testExists(ctx, tx, testID); err != nil {
			return err
		}

		attempts, err := listAttempts(ctx, tx, testID)
		if err != nil {
			return err
		}
		lb.Entries = rank(attempts)

		err = tx.QueryRow(ctx, `INSERT INTO standings_generations (test_id, generation) VALUES ($1, 1)
			ON CONFLICT (test_id) DO UPDATE SET generation = standings_generations.generation + 1
			RETURNING generation`, testID).Scan(&lb.Generation)
		if err != nil {
			return fmt.Errorf("bump standings generation: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM standings WHERE test_id=$1`, testID); err != nil {
			return fmt.Errorf("clear standings: %w", err)
		}
		if len(lb.Entries) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"standings"},
			[]string{"test_id", "attempt_id", "candidate_id", "rank", "score", "passed", "completed_at"},
			pgx.CopyFromSlice(len(lb.Entries), func(i int) ([]interface{}, error) {
				st := lb.Entries[i]
				return []interface{}{st.TestID, st.AttemptID, st.CandidateID, st.Rank, st.Score, st.Passed, st.CompletedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("write standings: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

// ListStandings reads the standings and their generation from one snapshot.
func (s *Store) ListStandings(ctx context.Context, testID string) (domain.Leaderboard, error) {
	lb := domain.Leaderboard{TestID: testID, Entries: []domain.Standing{}}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := s.pool.BeginTxFunc(ctx, opts, func(tx pgx.Tx) error {
		if err := testExists(ctx, tx, testID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, `SELECT COALESCE(
			(SELECT generation FROM standings_generations WHERE test_id=$1), 0)`, testID).Scan(&lb.Generation)
		if err != nil {
			return fmt.Errorf("read standings generation: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT test_id, attempt_id, candidate_id, rank, score, passed, completed_at
			FROM standings WHERE test_id=$1 ORDER BY rank`, testID)
		if err != nil {
			return fmt.Errorf("list standings: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var st domain.Standing
			if err := rows.Scan(&st.TestID, &st.AttemptID, &st.CandidateID, &st.Rank, &st.Score, &st.Passed, &st.CompletedAt); err != nil {
				return fmt.Errorf("scan standing: %w", err)
			}
			lb.Entries = append(lb.Entries, st)
		}
		return rows.Err()
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

func testExists(ctx context.Context, q querier, testID string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tests WHERE id=$1)`, testID).Scan(&exists); err != nil {
		return fmt.Errorf("check test: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}
