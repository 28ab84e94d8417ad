package deletion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"erasure/pkg/platform/sentinel"
	txcontext "erasure/pkg/platform/tx"
)

// PostgresStore implements Store over database/sql. A partial unique index
// on (user_id) WHERE status IN (active statuses) backs the single-active-
// request invariant; Create maps the violation to sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const requestColumns = `
	id, user_id, status, reason, source,
	parental_consent_required, parental_consent_verified,
	parent_confirmation_token, parent_confirmation_expiry,
	final_confirmation_token, final_confirmation_expiry,
	review_required, ip_address, user_agent,
	soft_deleted_at, recovery_deadline, hard_deleted_at,
	context, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, req *Request) error {
	contextBlob, err := json.Marshal(req.Context)
	if err != nil {
		return fmt.Errorf("marshal request context: %w", err)
	}
	query := `
		INSERT INTO user_deletion_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		req.ID, req.UserID, req.Status, nullString(req.Reason), req.Source,
		req.ParentalConsentRequired, req.ParentalConsentVerified,
		nullString(req.ParentConfirmationToken), req.ParentConfirmationExpiry,
		nullString(req.FinalConfirmationToken), req.FinalConfirmationExpiry,
		req.ReviewRequired, nullString(req.IPAddress), nullString(req.UserAgent),
		req.SoftDeletedAt, req.RecoveryDeadline, req.HardDeletedAt,
		contextBlob, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create deletion request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Request, error) {
	return s.getOne(ctx, `
		WHERE user_id = $1
		  AND status IN ('PENDING', 'PARENTAL_CONSENT_REQUIRED', 'REVIEW_REQUIRED', 'CONFIRMED', 'SOFT_DELETED')
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
}

func (s *PostgresStore) GetByParentToken(ctx context.Context, token string) (*Request, error) {
	if token == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.getOne(ctx, `WHERE parent_confirmation_token = $1`, token)
}

func (s *PostgresStore) GetByFinalToken(ctx context.Context, token string) (*Request, error) {
	if token == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.getOne(ctx, `WHERE final_confirmation_token = $1`, token)
}

func (s *PostgresStore) getOne(ctx context.Context, where string, args ...any) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM user_deletion_requests ` + where
	row := s.execer(ctx).QueryRowContext(ctx, query, args...)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get deletion request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id uuid.UUID, from Status, update Update) error {
	set := []string{"status = $3", "updated_at = $4"}
	args := []any{id, from, update.Status, update.UpdatedAt}
	next := 5

	add := func(clause string, value any) {
		set = append(set, fmt.Sprintf(clause, next))
		args = append(args, value)
		next++
	}

	if update.ClearParentToken {
		set = append(set, "parent_confirmation_token = NULL")
	}
	if update.ClearFinalToken {
		set = append(set, "final_confirmation_token = NULL")
	}
	if update.SetParentalConsentVerified {
		set = append(set, "parental_consent_verified = TRUE")
	}
	if update.SoftDeletedAt != nil {
		add("soft_deleted_at = $%d", *update.SoftDeletedAt)
	}
	if update.RecoveryDeadline != nil {
		add("recovery_deadline = $%d", *update.RecoveryDeadline)
	}
	if update.HardDeletedAt != nil {
		add("hard_deleted_at = $%d", *update.HardDeletedAt)
	}
	if update.Context != nil {
		blob, err := json.Marshal(update.Context)
		if err != nil {
			return fmt.Errorf("marshal request context: %w", err)
		}
		add("context = $%d", blob)
	}

	query := "UPDATE user_deletion_requests SET " + strings.Join(set, ", ") + " WHERE id = $1 AND status = $2"
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition deletion request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if n == 0 {
		// Either the row is missing or its status moved; callers re-read to
		// tell the two apart.
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) AppendAnonymizationRecords(ctx context.Context, records []AnonymizationRecord) error {
	query := `
		INSERT INTO anonymization_log (
			id, deletion_request_id, table_name, record_id,
			anonymized_fields, retained_fields, method,
			retention_reason, retention_period, legal_basis,
			processed_by, verification_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	for _, rec := range records {
		anonymized, err := json.Marshal(rec.AnonymizedFields)
		if err != nil {
			return fmt.Errorf("marshal anonymized fields: %w", err)
		}
		retained, err := json.Marshal(rec.RetainedFields)
		if err != nil {
			return fmt.Errorf("marshal retained fields: %w", err)
		}
		_, err = s.execer(ctx).ExecContext(ctx, query,
			rec.ID, rec.DeletionRequestID, rec.TableName, rec.RecordID,
			anonymized, retained, rec.Method,
			rec.RetentionReason, rec.RetentionPeriod, rec.LegalBasis,
			rec.ProcessedBy, rec.VerificationHash, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append anonymization record: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListRecoveryExpired(ctx context.Context, now time.Time) ([]*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM user_deletion_requests
		WHERE status = 'SOFT_DELETED' AND recovery_deadline < $1
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, now)
}

func (s *PostgresStore) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM user_deletion_requests WHERE created_at >= $1 AND created_at < $2`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count deletion requests: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) StatusBreakdown(ctx context.Context, from, to time.Time) (map[Status]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM user_deletion_requests
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("status breakdown: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status breakdown: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM user_deletion_requests
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, from, to)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Request, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deletion request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		req                       Request
		reason, parentToken       sql.NullString
		finalToken, ip, ua        sql.NullString
		parentExpiry, finalExpiry sql.NullTime
		softAt, deadline, hardAt  sql.NullTime
		contextBlob               []byte
	)
	err := row.Scan(
		&req.ID, &req.UserID, &req.Status, &reason, &req.Source,
		&req.ParentalConsentRequired, &req.ParentalConsentVerified,
		&parentToken, &parentExpiry,
		&finalToken, &finalExpiry,
		&req.ReviewRequired, &ip, &ua,
		&softAt, &deadline, &hardAt,
		&contextBlob, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Reason = reason.String
	req.ParentConfirmationToken = parentToken.String
	req.FinalConfirmationToken = finalToken.String
	req.IPAddress = ip.String
	req.UserAgent = ua.String
	req.ParentConfirmationExpiry = timePtr(parentExpiry)
	req.FinalConfirmationExpiry = timePtr(finalExpiry)
	req.SoftDeletedAt = timePtr(softAt)
	req.RecoveryDeadline = timePtr(deadline)
	req.HardDeletedAt = timePtr(hardAt)
	if len(contextBlob) > 0 {
		if err := json.Unmarshal(contextBlob, &req.Context); err != nil {
			return nil, fmt.Errorf("unmarshal request context: %w", err)
		}
	}
	return &req, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
