package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	txcontext "erasure/pkg/platform/tx"
)

// PostgresStore implements Store over database/sql. Appends participate in a
// context-carried transaction when one is present, so an entry written during
// a hard delete commits or rolls back with the delete itself.
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

const entryColumns = `
	id, deletion_request_id, action, performed_by, performed_by_role,
	performed_by_type, table_name, record_id, record_count,
	previous_status, new_status, action_details, metadata,
	ip_address, user_agent, session_id, created_at
`

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	query := `
		INSERT INTO deletion_audit_log (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		entry.ID, entry.DeletionRequestID, entry.Action, entry.PerformedBy,
		nullString(entry.PerformedByRole), entry.PerformedByType,
		nullString(entry.TableName), nullString(entry.RecordID), entry.RecordCount,
		nullString(entry.PreviousStatus), nullString(entry.NewStatus),
		nullString(entry.ActionDetails), meta,
		nullString(entry.IPAddress), nullString(entry.UserAgent),
		nullString(entry.SessionID), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRequest(ctx context.Context, deletionRequestID uuid.UUID, limit int) ([]*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM deletion_audit_log
		WHERE deletion_request_id = $1
		ORDER BY created_at DESC
	`
	args := []any{deletionRequestID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListBetween(ctx context.Context, from, to time.Time) ([]*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM deletion_audit_log
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list audit entries between: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) CountByActionSince(ctx context.Context, action Action, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM deletion_audit_log WHERE action = $1 AND created_at >= $2`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, action, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries by action: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountByIPSince(ctx context.Context, ip string, action Action, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM deletion_audit_log
		WHERE action = $1 AND ip_address = $2 AND created_at >= $3
	`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, action, ip, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries by ip: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ActionBreakdown(ctx context.Context, from, to time.Time) (map[Action]int, error) {
	query := `
		SELECT action, COUNT(*)
		FROM deletion_audit_log
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY action
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("audit action breakdown: %w", err)
	}
	defer rows.Close()

	out := make(map[Action]int)
	for rows.Next() {
		var action Action
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan action breakdown: %w", err)
		}
		out[action] = count
	}
	return out, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		var (
			e                                                         Entry
			meta                                                      []byte
			role, table, record, prev, next, details, ip, ua, session sql.NullString
		)
		err := rows.Scan(
			&e.ID, &e.DeletionRequestID, &e.Action, &e.PerformedBy, &role,
			&e.PerformedByType, &table, &record, &e.RecordCount,
			&prev, &next, &details, &meta,
			&ip, &ua, &session, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.PerformedByRole = role.String
		e.TableName = table.String
		e.RecordID = record.String
		e.PreviousStatus = prev.String
		e.NewStatus = next.String
		e.ActionDetails = details.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.SessionID = session.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
