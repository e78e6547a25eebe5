package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certhub/internal/auth/models"
	"certhub/internal/platform/database"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, name, password_hash, role, active, last_login_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(u.ID), u.Email, u.Name, u.PasswordHash, string(u.Role), u.Active,
		database.NullTime(u.LastLoginAt), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return s.scanOne(row, "find user by id")
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return s.scanOne(row, "find user by email")
}

func (s *PostgresStore) scanOne(row *sql.Row, op string) (*models.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE users
		SET email = $2, name = $3, password_hash = $4, role = $5, active = $6,
			last_login_at = $7, updated_at = $8
		WHERE id = $1
	`,
		uuid.UUID(u.ID), u.Email, u.Name, u.PasswordHash, string(u.Role), u.Active,
		database.NullTime(u.LastLoginAt), u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List returns one page of users ordered by creation time plus the total.
func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]*models.User, int, error) {
	var w database.Where
	if f.Role != "" {
		w.Add("role = ?", string(f.Role))
	}
	if f.Active != nil {
		w.Add("active = ?", *f.Active)
	}
	if f.Search != "" {
		w.Add("(email ILIKE ? OR name ILIKE ?)", database.Contains(f.Search))
	}

	conn := database.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	page, args := w.Page(f.Limit, f.Offset)
	query := `SELECT ` + userColumns + ` FROM users` + w.SQL() + ` ORDER BY created_at DESC, id` + page
	users, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ListActiveByRole returns every active user holding role.
func (s *PostgresStore) ListActiveByRole(ctx context.Context, role id.Role) ([]*models.User, error) {
	return s.query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 AND active ORDER BY email`, string(role))
}

// CountByRole returns the number of users per role.
func (s *PostgresStore) CountByRole(ctx context.Context) (map[id.Role]int, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	defer rows.Close()
	out := make(map[id.Role]int)
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		out[id.Role(role)] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		userID    uuid.UUID
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&userID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.Active,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.Role = id.Role(role)
	u.LastLoginAt = database.TimePtr(lastLogin)
	return &u, nil
}
