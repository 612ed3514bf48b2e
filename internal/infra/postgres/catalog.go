package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assessment-engine/internal/domain"
	"github.com/jackc/pgx/v4"
)

const selectTest = `SELECT id, organizer_id, job_id, title, opens_at, closes_at, duration_minutes,
	passing_score, revision, created_at, published_at, closed_at, locked_at
	FROM tests WHERE id=$1`

func (s *Store) CreateTest(ctx context.Context, test domain.Test) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO tests (id, organizer_id, job_id, title, opens_at, closes_at,
			duration_minutes, passing_score, revision, created_at, published_at, closed_at, locked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			test.ID, test.OrganizerID, test.JobID, test.Title, test.OpensAt, test.ClosesAt,
			test.DurationMinutes, test.PassingScore, test.Revision, test.CreatedAt,
			test.PublishedAt, test.ClosedAt, test.LockedAt)
		if err != nil {
			return err
		}
		for _, q := range test.Questions {
			if err := insertQuestion(ctx, tx, q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create test: %w", err)
	}
	return nil
}

func (s *Store) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	return loadTest(ctx, s.pool, testID, false)
}

// AddQuestion holds the test row lock from the lock check through the insert,
// so it serializes against CreateAttempt which updates the same row.
func (s *Store) AddQuestion(ctx context.Context, testID string, build func(domain.Test) (domain.Question, error)) (domain.Question, error) {
	var added domain.Question
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		test, err := loadTest(ctx, tx, testID, true)
		if err != nil {
			return err
		}
		if test.Locked() {
			return domain.ErrTestLocked
		}
		q, err := build(test)
		if err != nil {
			return err
		}
		if err := insertQuestion(ctx, tx, q); err != nil {
			if isUniqueViolation(err) {
				return &domain.InvalidDefinitionError{Problems: []string{fmt.Sprintf("question: position %d already used", q.Position)}}
			}
			return fmt.Errorf("insert question: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE tests SET revision = revision + 1 WHERE id=$1`, testID); err != nil {
			return fmt.Errorf("bump revision: %w", err)
		}
		added = q
		return nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return added, nil
}

func (s *Store) PublishTest(ctx context.Context, testID string, at time.Time) (domain.Test, error) {
	return s.stampTest(ctx, `UPDATE tests SET published_at = COALESCE(published_at, $2) WHERE id=$1`, testID, at)
}

func (s *Store) CloseTest(ctx context.Context, testID string, at time.Time) (domain.Test, error) {
	return s.stampTest(ctx, `UPDATE tests SET closed_at = COALESCE(closed_at, $2) WHERE id=$1`, testID, at)
}

func (s *Store) stampTest(ctx context.Context, sql, testID string, at time.Time) (domain.Test, error) {
	tag, err := s.pool.Exec(ctx, sql, testID, at)
	if err != nil {
		return domain.Test{}, fmt.Errorf("update test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Test{}, domain.ErrNotFound
	}
	return s.GetTest(ctx, testID)
}

// LoadSnapshot returns the snapshot of a test at revision.
func (s *Store) LoadSnapshot(ctx context.Context, testID string, revision int) (domain.Snapshot, error) {
	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if test.Revision != revision {
		return domain.Snapshot{}, fmt.Errorf("load snapshot %s@%d: current revision %d", testID, revision, test.Revision)
	}
	return test.Snapshot(), nil
}

func loadTest(ctx context.Context, q querier, testID string, forUpdate bool) (domain.Test, error) {
	sql := selectTest
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var t domain.Test
	err := q.QueryRow(ctx, sql, testID).Scan(
		&t.ID, &t.OrganizerID, &t.JobID, &t.Title, &t.OpensAt, &t.ClosesAt, &t.DurationMinutes,
		&t.PassingScore, &t.Revision, &t.CreatedAt, &t.PublishedAt, &t.ClosedAt, &t.LockedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("load test: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT q.id, q.position, q.prompt, q.points, q.kind,
		o.id, o.position, o.text, o.correct
		FROM questions q JOIN options o ON o.question_id = q.id
		WHERE q.test_id=$1
		ORDER BY q.position, o.position`, testID)
	if err != nil {
		return domain.Test{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			question domain.Question
			kind     string
			option   domain.Option
		)
		if err := rows.Scan(&question.ID, &question.Position, &question.Prompt, &question.Points, &kind,
			&option.ID, &option.Position, &option.Text, &option.Correct); err != nil {
			return domain.Test{}, fmt.Errorf("scan question: %w", err)
		}
		option.QuestionID = question.ID
		if n := len(t.Questions); n == 0 || t.Questions[n-1].ID != question.ID {
			question.TestID = t.ID
			question.Kind = domain.QuestionKind(kind)
			t.Questions = append(t.Questions, question)
		}
		last := &t.Questions[len(t.Questions)-1]
		last.Options = append(last.Options, option)
	}
	if err := rows.Err(); err != nil {
		return domain.Test{}, fmt.Errorf("load questions: %w", err)
	}
	return t, nil
}

func insertQuestion(ctx context.Context, q querier, question domain.Question) error {
	_, err := q.Exec(ctx, `INSERT INTO questions (id, test_id, position, prompt, points, kind)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		question.ID, question.TestID, question.Position, question.Prompt, question.Points, string(question.Kind))
	if err != nil {
		return err
	}
	for _, o := range question.Options {
		_, err := q.Exec(ctx, `INSERT INTO options (id, question_id, position, text, correct)
			VALUES ($1, $2, $3, $4, $5)`, o.ID, question.ID, o.Position, o.Text, o.Correct)
		if err != nil {
			return err
		}
	}
	return nil
}
