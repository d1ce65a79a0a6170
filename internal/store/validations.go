// Package store provides the Data Access Layer for the validation audit history.
// It handles all direct interactions with PostgreSQL using the pgx driver.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

// Compile-time check to verify that PostgresStore implements ValidationRepository.
var _ ValidationRepository = (*PostgresStore)(nil)

// ErrRecordNotFound is returned when a validation record does not exist.
var ErrRecordNotFound = errors.New("validation record not found")

// ValidationRecord mirrors the 'validation_records' table.
type ValidationRecord struct {
	ID           int64                        `json:"id"`
	RequestID    string                       `json:"request_id,omitempty"`
	DocNo        string                       `json:"doc_no"`
	DocType      string                       `json:"doc_type"`
	AmountTotal  *float64                     `json:"amount_total,omitempty"`
	Passed       bool                         `json:"passed"`
	RulesVersion string                       `json:"rules_version"`
	RulesDigest  string                       `json:"rules_digest"`
	FailedRules  []string                     `json:"failed_rules"`
	Issues       []ruleengine.ValidationIssue `json:"issues"`
	CreatedAt    time.Time                    `json:"created_at"`
}

// NewValidationRecord builds the record for a finished validation.
func NewValidationRecord(requestID, digest string, payload ruleengine.DocumentPayload, resp ruleengine.ValidationResponse) *ValidationRecord {
	return &ValidationRecord{
		RequestID:    requestID,
		DocNo:        payload.DocNo,
		DocType:      payload.DocType,
		AmountTotal:  payload.AmountTotal,
		Passed:       resp.Passed,
		RulesVersion: resp.RulesVersion,
		RulesDigest:  digest,
		FailedRules:  resp.FailedRules(),
		Issues:       resp.Issues,
	}
}

// ListFilter narrows ListValidations. Zero values mean "any".
type ListFilter struct {
	DocNo   string
	DocType string
	Passed  *bool
}

// ValidationRepository defines the persistence operations for audit records.
type ValidationRepository interface {
	// RecordValidation inserts r and populates its ID and CreatedAt.
	RecordValidation(ctx context.Context, r *ValidationRecord) error

	// GetValidation returns a single record or ErrRecordNotFound.
	GetValidation(ctx context.Context, id int64) (*ValidationRecord, error)

	// ListValidations returns a page of records, newest first, and the total
	// number of records matching filter.
	ListValidations(ctx context.Context, filter ListFilter, limit, offset int) ([]*ValidationRecord, int64, error)
}

// PostgresStore is the implementation of ValidationRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// RecordValidation inserts a record, returning the server-generated ID and timestamp.
func (s *PostgresStore) RecordValidation(ctx context.Context, r *ValidationRecord) error {
	issues := r.Issues
	if issues == nil {
		issues = []ruleengine.ValidationIssue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("failed to encode issues: %w", err)
	}

	failed := r.FailedRules
	if failed == nil {
		failed = []string{}
	}

	query := `
		INSERT INTO validation_records
			(request_id, doc_no, doc_type, amount_total, passed, rules_version, rules_digest, failed_rules, issues)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err = s.db.QueryRow(ctx, query,
		r.RequestID,
		r.DocNo,
		r.DocType,
		r.AmountTotal,
		r.Passed,
		r.RulesVersion,
		r.RulesDigest,
		failed,
		string(issuesJSON),
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert validation record: %w", err)
	}

	return nil
}

const selectColumns = `
	SELECT id, request_id, doc_no, doc_type, amount_total, passed,
	       rules_version, rules_digest, failed_rules, issues, created_at
	FROM validation_records
`

// GetValidation fetches a record by ID.
func (s *PostgresStore) GetValidation(ctx context.Context, id int64) (*ValidationRecord, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)

	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get validation record %d: %w", id, err)
	}
	return r, nil
}

// ListValidations retrieves a page of records ordered by ID descending.
// It executes two queries: one for the total count and one for the data.
func (s *PostgresStore) ListValidations(ctx context.Context, filter ListFilter, limit, offset int) ([]*ValidationRecord, int64, error) {
	where, args := filter.clause()

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM validation_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count validation records: %w", err)
	}

	// Nothing to fetch: skip the second query.
	if total == 0 {
		return []*ValidationRecord{}, 0, nil
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf("%s%s ORDER BY id DESC LIMIT $%d OFFSET $%d", selectColumns, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list validation records: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	records := make([]*ValidationRecord, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan validation record: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, total, nil
}

// clause renders filter as a WHERE clause with positional arguments.
func (f ListFilter) clause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if f.DocNo != "" {
		add("doc_no", f.DocNo)
	}
	if f.DocType != "" {
		add("doc_type", f.DocType)
	}
	if f.Passed != nil {
		add("passed", *f.Passed)
	}

	if len(conds) == 0 {
		return "", nil
	}

	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanRecord(row pgx.Row) (*ValidationRecord, error) {
	var (
		r      ValidationRecord
		issues []byte
	)
	if err := row.Scan(
		&r.ID,
		&r.RequestID,
		&r.DocNo,
		&r.DocType,
		&r.AmountTotal,
		&r.Passed,
		&r.RulesVersion,
		&r.RulesDigest,
		&r.FailedRules,
		&issues,
		&r.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(issues, &r.Issues); err != nil {
		return nil, fmt.Errorf("failed to decode issues of record %d: %w", r.ID, err)
	}
	return &r, nil
}
