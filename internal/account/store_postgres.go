package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"erasure/pkg/platform/sentinel"
	txcontext "erasure/pkg/platform/tx"
)

// PostgresStore implements Store over database/sql. Mutations participate in
// a context-carried transaction when one is present, which is how the
// deletion engine keeps soft and hard deletes atomic across tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) FindUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, name, role, deleted_at, deletion_request_id, created_at
		FROM users
		WHERE id = $1
	`
	var u User
	err := s.execer(ctx).QueryRowContext(ctx, query, userID).Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.DeletedAt, &u.DeletionRequestID, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) FindProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	query := `
		SELECT user_id, date_of_birth, parental_consent_date, bio, country
		FROM profiles
		WHERE user_id = $1
	`
	var p Profile
	err := s.execer(ctx).QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.DateOfBirth, &p.ParentalConsentDate, &p.Bio, &p.Country,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) FindVolunteerProfile(ctx context.Context, userID uuid.UUID) (*VolunteerProfile, error) {
	query := `
		SELECT vp.user_id, vp.bio, vp.skills, vp.languages, vp.total_hours, vp.completed_projects,
		       (SELECT COUNT(*) FROM volunteer_applications va
		        WHERE va.volunteer_user_id = vp.user_id AND va.status = 'PENDING')
		FROM volunteer_profiles vp
		WHERE vp.user_id = $1
	`
	var v VolunteerProfile
	err := s.execer(ctx).QueryRowContext(ctx, query, userID).Scan(
		&v.UserID, &v.Bio, pq.Array(&v.Skills), pq.Array(&v.Languages),
		&v.TotalHours, &v.CompletedProjects, &v.PendingApplications,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find volunteer profile: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) CountOrdersByStatus(ctx context.Context, userID uuid.UUID, statuses []OrderStatus) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = ANY($2)`
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, userID, pq.Array(raw)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountActiveRecurringDonations(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM recurring_donations WHERE user_id = $1 AND active`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recurring donations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountActiveClasses(ctx context.Context, teacherID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM classes WHERE teacher_id = $1 AND is_active`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, teacherID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkDeleted(ctx context.Context, userID, deletionRequestID uuid.UUID, at time.Time) error {
	query := `UPDATE users SET deleted_at = $2, deletion_request_id = $3 WHERE id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, query, userID, at, deletionRequestID)
	if err != nil {
		return fmt.Errorf("mark user deleted: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ClearDeleted(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET deleted_at = NULL, deletion_request_id = NULL WHERE id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("clear user deleted: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSessions(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteOAuthAccounts(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM oauth_accounts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete oauth accounts: %w", err)
	}
	return nil
}

func (s *PostgresStore) AnonymizeOrders(ctx context.Context, userID uuid.UUID, email, name string) (int, error) {
	query := `UPDATE orders SET customer_email = $2, customer_name = $3 WHERE user_id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, query, userID, email, name)
	if err != nil {
		return 0, fmt.Errorf("anonymize orders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("anonymize orders rows: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) AnonymizeStories(ctx context.Context, userID uuid.UUID, authorName string) (int, error) {
	query := `UPDATE stories SET author_id = NULL, author_name = $2 WHERE author_id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, query, userID, authorName)
	if err != nil {
		return 0, fmt.Errorf("anonymize stories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("anonymize stories rows: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) GeneralizeVolunteerProfile(ctx context.Context, userID uuid.UUID, bio string) (int, error) {
	query := `
		UPDATE volunteer_profiles
		SET bio = $2, skills = '{}', languages = '{}'
		WHERE user_id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, userID, bio)
	if err != nil {
		return 0, fmt.Errorf("generalize volunteer profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("generalize volunteer profile rows: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
