package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"certhub/internal/activity/models"
	"certhub/internal/platform/database"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// PostgresStore persists activity logs in the activity_logs table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const activityColumns = `id, action, category, status, user_id, institution_id, certificate_id,
	description, metadata, ip_address, user_agent, created_at`

func (s *PostgresStore) Append(ctx context.Context, r *models.Record) error {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	query := `
		INSERT INTO activity_logs (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = database.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID),
		r.Action,
		string(r.Category),
		string(r.Status),
		database.NullUUID(r.UserID),
		database.NullUUID(r.InstitutionID),
		database.NullUUID(r.CertificateID),
		r.Description,
		meta,
		r.IPAddress,
		r.UserAgent,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, logID id.ActivityLogID) (*models.Record, error) {
	row := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activity_logs WHERE id = $1`, uuid.UUID(logID))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find activity log: %w", err)
	}
	return r, nil
}

// List returns one page of matching records, newest first, plus the total count.
func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]*models.Record, int, error) {
	where, args := buildWhere(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM activity_logs` + where
	if err := database.Conn(ctx, s.db).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + activityColumns + ` FROM activity_logs` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query activity logs: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan activity log: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate activity logs: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM activity_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge activity logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge activity logs rows affected: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountSince(ctx context.Context, category models.Category, status models.Status, since time.Time) (int, error) {
	var n int
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_logs WHERE category = $1 AND status = $2 AND created_at >= $3`,
		string(category), string(status), since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activity logs: %w", err)
	}
	return n, nil
}

func buildWhere(f models.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.UserID != nil {
		add("user_id = $%d", uuid.UUID(*f.UserID))
	}
	if f.InstitutionID != nil {
		add("institution_id = $%d", uuid.UUID(*f.InstitutionID))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r                      models.Record
		recID                  uuid.UUID
		category, status       string
		userID, instID, certID *uuid.UUID
		meta                   []byte
	)
	if err := row.Scan(&recID, &r.Action, &category, &status, &userID, &instID, &certID,
		&r.Description, &meta, &r.IPAddress, &r.UserAgent, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = id.ActivityLogID(recID)
	r.Category = models.Category(category)
	r.Status = models.Status(status)
	r.UserID = database.TypedID[id.UserID](userID)
	r.InstitutionID = database.TypedID[id.InstitutionID](instID)
	r.CertificateID = database.TypedID[id.CertificateID](certID)
	r.Metadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &r, nil
}
