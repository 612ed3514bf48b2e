package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assessment-engine/internal/domain"
	"github.com/jackc/pgx/v4"
)

const selectAttempt = `SELECT a.id, a.test_id, a.candidate_id, a.state, a.started_at, a.snapshot_revision,
	a.total_possible_points, a.version, a.completed_at, COALESCE(a.score, 0), COALESCE(a.passed, FALSE),
	COALESCE(s.rank, 0)
	FROM attempts a LEFT JOIN standings s ON s.attempt_id = a.id`

// CreateAttempt stamps the test lock and inserts the attempt in one
// transaction. The UPDATE takes the test row lock and re-checks the revision
// and the open window at the start instant, so a concurrent AddQuestion or
// CloseTest either commits first (and the start fails) or waits behind it.
func (s *Store) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE tests SET locked_at = COALESCE(locked_at, $2)
			WHERE id=$1 AND revision=$3
				AND published_at IS NOT NULL AND closed_at IS NULL
				AND (opens_at IS NULL OR opens_at <= $2)
				AND (closes_at IS NULL OR closes_at > $2)`,
			attempt.TestID, attempt.StartedAt, attempt.SnapshotRevision)
		if err != nil {
			return fmt.Errorf("lock test: %w", err)
		}
		if tag.RowsAffected() == 0 {
			test, err := loadTest(ctx, tx, attempt.TestID, false)
			if err != nil {
				return err
			}
			if test.Revision != attempt.SnapshotRevision {
				return domain.ErrConcurrentModification
			}
			return domain.ErrTestNotOpen
		}

		_, err = tx.Exec(ctx, `INSERT INTO attempts (id, test_id, candidate_id, state, started_at,
			snapshot_revision, total_possible_points, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			attempt.ID, attempt.TestID, attempt.CandidateID, string(attempt.State), attempt.StartedAt,
			attempt.SnapshotRevision, attempt.TotalPossiblePoints, attempt.Version)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyAttempted
		}
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx, selectAttempt+` WHERE a.id=$1`, attemptID))
}

func (s *Store) FindAttempt(ctx context.Context, testID, candidateID string) (domain.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx, selectAttempt+` WHERE a.test_id=$1 AND a.candidate_id=$2`, testID, candidateID))
}

func (s *Store) ListAttempts(ctx context.Context, testID string) ([]domain.Attempt, error) {
	return listAttempts(ctx, s.pool, testID)
}

func (s *Store) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `SELECT attempt_id, question_id, option_id, answered_at
		FROM answers WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.OptionID, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAnswer bumps the attempt version and upserts the answer atomically.
func (s *Store) SaveAnswer(ctx context.Context, answer domain.Answer, expectedVersion int64) (int64, error) {
	var version int64
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `UPDATE attempts SET version = version + 1
			WHERE id=$1 AND version=$2 AND state='in_progress'
			RETURNING version`, answer.AttemptID, expectedVersion).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return versionConflict(ctx, tx, answer.AttemptID, expectedVersion, true)
		}
		if err != nil {
			return fmt.Errorf("bump attempt version: %w", err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO answers (attempt_id, question_id, option_id, answered_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (attempt_id, question_id)
			DO UPDATE SET option_id = EXCLUDED.option_id, answered_at = EXCLUDED.answered_at`,
			answer.AttemptID, answer.QuestionID, answer.OptionID, answer.AnsweredAt)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) CompleteAttempt(ctx context.Context, attemptID string, expectedVersion int64, completion domain.Completion) (domain.Attempt, error) {
	var completed domain.Attempt
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE attempts
			SET state='completed', completed_at=$3, score=$4, passed=$5, version = version + 1
			WHERE id=$1 AND version=$2 AND state='in_progress'`,
			attemptID, expectedVersion, completion.CompletedAt, completion.Score, completion.Passed)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return versionConflict(ctx, tx, attemptID, expectedVersion, false)
		}
		completed, err = scanAttempt(tx.QueryRow(ctx, selectAttempt+` WHERE a.id=$1`, attemptID))
		return err
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return completed, nil
}

// versionConflict explains why a guarded attempt update matched no row.
func versionConflict(ctx context.Context, q querier, attemptID string, expectedVersion int64, stateFirst bool) error {
	var (
		state   string
		version int64
	)
	err := q.QueryRow(ctx, `SELECT state, version FROM attempts WHERE id=$1`, attemptID).Scan(&state, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}
	notInProgress := domain.AttemptState(state) != domain.AttemptInProgress
	if stateFirst && notInProgress {
		return domain.ErrAttemptNotInProgress
	}
	if version != expectedVersion {
		return domain.ErrConcurrentModification
	}
	return domain.ErrAttemptNotInProgress
}

func listAttempts(ctx context.Context, q querier, testID string) ([]domain.Attempt, error) {
	rows, err := q.Query(ctx, selectAttempt+` WHERE a.test_id=$1 ORDER BY a.started_at, a.id`, testID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		a           domain.Attempt
		state       string
		completedAt *time.Time
		score       int
		passed      bool
		rank        int
	)
	err := row.Scan(&a.ID, &a.TestID, &a.CandidateID, &state, &a.StartedAt, &a.SnapshotRevision,
		&a.TotalPossiblePoints, &a.Version, &completedAt, &score, &passed, &rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	a.State = domain.AttemptState(state)
	if completedAt != nil {
		a.Completion = &domain.Completion{CompletedAt: *completedAt, Score: score, Passed: passed}
	}
	if rank > 0 {
		a.Rank = &rank
	}
	return a, nil
}
