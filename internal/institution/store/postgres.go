package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certhub/internal/institution/models"
	"certhub/internal/platform/database"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// PostgresStore persists institutions and their memberships.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const institutionColumns = `id, name, type, status, email, website, address, description, logo_url, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, inst *models.Institution) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO institutions (`+institutionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(inst.ID), inst.Name, string(inst.Type), string(inst.Status), inst.Email, inst.Website,
		inst.Address, inst.Description, inst.LogoURL, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert institution: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, instID id.InstitutionID) (*models.Institution, error) {
	row := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+institutionColumns+` FROM institutions WHERE id = $1`, uuid.UUID(instID))
	inst, err := scanInstitution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find institution: %w", err)
	}
	return inst, nil
}

func (s *PostgresStore) Update(ctx context.Context, inst *models.Institution) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE institutions
		SET name = $2, type = $3, status = $4, email = $5, website = $6, address = $7,
			description = $8, logo_url = $9, updated_at = $10
		WHERE id = $1
	`,
		uuid.UUID(inst.ID), inst.Name, string(inst.Type), string(inst.Status), inst.Email, inst.Website,
		inst.Address, inst.Description, inst.LogoURL, inst.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update institution: %w", err)
	}
	return requireAffected(res)
}

// Delete removes an institution. Institutions still referenced by
// certificates fail with sentinel.ErrConflict.
func (s *PostgresStore) Delete(ctx context.Context, instID id.InstitutionID) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM institutions WHERE id = $1`, uuid.UUID(instID))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("delete institution: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]*models.Institution, int, error) {
	var w database.Where
	if f.OnlyID != nil {
		w.Add("id = ?", uuid.UUID(*f.OnlyID))
	}
	if f.Status != "" {
		w.Add("status = ?", string(f.Status))
	}
	if f.Type != "" {
		w.Add("type = ?", string(f.Type))
	}
	if f.Search != "" {
		w.Add("name ILIKE ?", database.Contains(f.Search))
	}

	conn := database.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM institutions`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count institutions: %w", err)
	}
	page, args := w.Page(f.Limit, f.Offset)
	rows, err := conn.QueryContext(ctx, `SELECT `+institutionColumns+` FROM institutions`+w.SQL()+` ORDER BY name`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query institutions: %w", err)
	}
	defer rows.Close()
	var out []*models.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan institution: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate institutions: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `SELECT status, COUNT(*) FROM institutions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count institutions by status: %w", err)
	}
	defer rows.Close()
	out := make(map[models.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[models.Status(status)] = n
	}
	return out, rows.Err()
}

// AddMember inserts a membership. A user already in any institution yields sentinel.ErrConflict.
func (s *PostgresStore) AddMember(ctx context.Context, m *models.Member) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO institution_users (institution_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(m.InstitutionID), uuid.UUID(m.UserID), string(m.Role), m.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if database.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, instID id.InstitutionID, userID id.UserID) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM institution_users WHERE institution_id = $1 AND user_id = $2`,
		uuid.UUID(instID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) ListMembers(ctx context.Context, instID id.InstitutionID) ([]*models.Member, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT iu.institution_id, iu.user_id, iu.role, iu.created_at, u.email, u.name
		FROM institution_users iu
		JOIN users u ON u.id = iu.user_id
		WHERE iu.institution_id = $1
		ORDER BY iu.created_at
	`, uuid.UUID(instID))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()
	var out []*models.Member
	for rows.Next() {
		var (
			m              models.Member
			instUUID, uUID uuid.UUID
			role           string
		)
		if err := rows.Scan(&instUUID, &uUID, &role, &m.CreatedAt, &m.Email, &m.Name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.InstitutionID = id.InstitutionID(instUUID)
		m.UserID = id.UserID(uUID)
		m.Role = models.MemberRole(role)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountMembers(ctx context.Context, instID id.InstitutionID) (int, error) {
	var n int
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM institution_users WHERE institution_id = $1`, uuid.UUID(instID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// InstitutionOf returns the institution userID belongs to.
func (s *PostgresStore) InstitutionOf(ctx context.Context, userID id.UserID) (id.InstitutionID, error) {
	var instUUID uuid.UUID
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT institution_id FROM institution_users WHERE user_id = $1`, uuid.UUID(userID)).Scan(&instUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return id.InstitutionID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.InstitutionID{}, fmt.Errorf("find membership: %w", err)
	}
	return id.InstitutionID(instUUID), nil
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstitution(row rowScanner) (*models.Institution, error) {
	var (
		inst        models.Institution
		instID      uuid.UUID
		typ, status string
	)
	if err := row.Scan(&instID, &inst.Name, &typ, &status, &inst.Email, &inst.Website, &inst.Address,
		&inst.Description, &inst.LogoURL, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	inst.ID = id.InstitutionID(instID)
	inst.Type = models.Type(typ)
	inst.Status = models.Status(status)
	return &inst, nil
}
