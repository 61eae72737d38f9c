package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
	"github.com/sec-tools/iac-sentinel/pkg/models/store"
)

var ErrNotFound = errors.New("review not found")

// Store archives review runs keyed by change request number. Upsert is
// called repeatedly while a run progresses, so the row always reflects the
// latest state.
type Store interface {
	Upsert(ctx context.Context, rec domain.ReviewRecord) error
	Get(ctx context.Context, id int) (domain.ReviewRecord, error)
	List(ctx context.Context) ([]store.ReviewSummary, error)
}

type defaultStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &defaultStore{db: db}, nil
}

func (s *defaultStore) Upsert(ctx context.Context, rec domain.ReviewRecord) error {
	issues, fixes, err := marshalPayloads(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reviews (id, status, issues, fixes, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			issues = excluded.issues,
			fixes = excluded.fixes,
			error = excluded.error,
			updated_at = excluded.updated_at`

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		rec.ID,
		string(rec.Status),
		issues,
		fixes,
		rec.Error,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

func (s *defaultStore) Get(ctx context.Context, id int) (domain.ReviewRecord, error) {
	query := `
		SELECT id, status, issues, fixes, error, created_at, updated_at
		FROM reviews
		WHERE id = ?`

	var row store.Review
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID,
		&row.Status,
		&row.Issues,
		&row.Fixes,
		&row.Error,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReviewRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("get review: %w", err)
	}

	return unmarshalRow(row)
}

func (s *defaultStore) List(ctx context.Context) ([]store.ReviewSummary, error) {
	query := `
		SELECT id, status, json_array_length(issues), json_array_length(fixes), updated_at
		FROM reviews
		ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	summaries := make([]store.ReviewSummary, 0)
	for rows.Next() {
		var summary store.ReviewSummary
		if err := rows.Scan(&summary.ID, &summary.Status, &summary.IssueCount, &summary.FixCount, &summary.UpdatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func marshalPayloads(rec domain.ReviewRecord) (issues, fixes []byte, err error) {
	if rec.Issues == nil {
		rec.Issues = []domain.LocatedIssue{}
	}
	if rec.Fixes == nil {
		rec.Fixes = []domain.AppliedFix{}
	}

	issues, err = json.Marshal(rec.Issues)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal issues: %w", err)
	}
	fixes, err = json.Marshal(rec.Fixes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal fixes: %w", err)
	}
	return issues, fixes, nil
}

func unmarshalRow(row store.Review) (domain.ReviewRecord, error) {
	rec := domain.ReviewRecord{
		ID:        row.ID,
		Status:    domain.ReviewStatus(row.Status),
		Error:     row.Error,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}

	if len(row.Issues) > 0 {
		if err := json.Unmarshal(row.Issues, &rec.Issues); err != nil {
			return domain.ReviewRecord{}, fmt.Errorf("unmarshal issues: %w", err)
		}
	}
	if len(row.Fixes) > 0 {
		if err := json.Unmarshal(row.Fixes, &rec.Fixes); err != nil {
			return domain.ReviewRecord{}, fmt.Errorf("unmarshal fixes: %w", err)
		}
	}
	return rec, nil
}
