package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certhub/internal/certificate/models"
	"certhub/internal/platform/database"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// PostgresStore persists certificates in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const certificateColumns = `id, verification_id, title, description, recipient_name, recipient_email,
	recipient_user_id, institution_id, issuer_id, issue_date, expiry_date, status, revocation_reason,
	revoked_at, file_url, file_hash, blockchain_status, blockchain_network, blockchain_tx_hash,
	anchored_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Certificate) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO certificates (`+certificateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`,
		uuid.UUID(c.ID), c.VerificationID, c.Title, c.Description, c.RecipientName, c.RecipientEmail,
		database.NullUUID(c.RecipientUserID), uuid.UUID(c.InstitutionID), database.NullUUID(c.IssuerID),
		c.IssueDate, database.NullTime(c.ExpiryDate), string(c.Status), c.RevocationReason,
		database.NullTime(c.RevokedAt), c.FileURL, c.FileHash, string(c.AnchorStatus), c.AnchorNetwork,
		c.AnchorTxHash, database.NullTime(c.AnchoredAt), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if database.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	return s.findOne(ctx, `id = $1`, uuid.UUID(certID))
}

func (s *PostgresStore) FindByVerificationID(ctx context.Context, verificationID string) (*models.Certificate, error) {
	return s.findOne(ctx, `verification_id = $1`, verificationID)
}

// FindByFileHash returns the most recently issued certificate for hash. Ties
// go to the latest created, then the lowest id.
func (s *PostgresStore) FindByFileHash(ctx context.Context, hash string) (*models.Certificate, error) {
	return s.findOne(ctx, `file_hash = $1 ORDER BY issue_date DESC, created_at DESC, id LIMIT 1`, hash)
}

func (s *PostgresStore) findOne(ctx context.Context, cond string, arg any) (*models.Certificate, error) {
	row := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE `+cond, arg)
	c, err := scanCertificate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *models.Certificate) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE certificates
		SET title = $2, description = $3, recipient_name = $4, recipient_email = $5,
			recipient_user_id = $6, expiry_date = $7, status = $8, revocation_reason = $9,
			revoked_at = $10, file_url = $11, file_hash = $12, blockchain_status = $13,
			blockchain_network = $14, blockchain_tx_hash = $15, anchored_at = $16, updated_at = $17
		WHERE id = $1
	`,
		uuid.UUID(c.ID), c.Title, c.Description, c.RecipientName, c.RecipientEmail,
		database.NullUUID(c.RecipientUserID), database.NullTime(c.ExpiryDate), string(c.Status),
		c.RevocationReason, database.NullTime(c.RevokedAt), c.FileURL, c.FileHash,
		string(c.AnchorStatus), c.AnchorNetwork, c.AnchorTxHash, database.NullTime(c.AnchoredAt), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, certID id.CertificateID) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, uuid.UUID(certID))
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]*models.Certificate, int, error) {
	var w database.Where
	if f.InstitutionID != nil {
		w.Add("institution_id = ?", uuid.UUID(*f.InstitutionID))
	}
	if f.Owner != nil {
		w.Add("(recipient_user_id = ? OR recipient_email = ?)", uuid.UUID(f.Owner.UserID), f.Owner.Email)
	}
	if f.Status != "" {
		w.Add("status = ?", string(f.Status))
	}
	if f.Search != "" {
		w.Add("(title ILIKE ? OR recipient_name ILIKE ? OR verification_id ILIKE ?)", database.Contains(f.Search))
	}

	conn := database.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}
	page, args := w.Page(f.Limit, f.Offset)
	certs, err := s.query(ctx, `SELECT `+certificateColumns+` FROM certificates`+w.SQL()+
		` ORDER BY issue_date DESC, id`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	return certs, total, nil
}

func (s *PostgresStore) CountByInstitution(ctx context.Context, instID id.InstitutionID) (int, error) {
	var n int
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM certificates WHERE institution_id = $1`, uuid.UUID(instID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `SELECT status, COUNT(*) FROM certificates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count certificates by status: %w", err)
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

// ListExpired returns up to limit ACTIVE certificates whose expiry date is before now.
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Certificate, error) {
	return s.query(ctx, `SELECT `+certificateColumns+` FROM certificates
		WHERE status = 'ACTIVE' AND expiry_date IS NOT NULL AND expiry_date < $1
		ORDER BY expiry_date LIMIT $2`, now, limit)
}

// MarkExpired flips the given ACTIVE certificates to EXPIRED and returns how many changed.
func (s *PostgresStore) MarkExpired(ctx context.Context, ids []id.CertificateID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, certID := range ids {
		raw[i] = certID.String()
	}
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE certificates SET status = 'EXPIRED', updated_at = $2
		WHERE id = ANY($1::uuid[]) AND status = 'ACTIVE'
	`, pq.Array(raw), now)
	if err != nil {
		return 0, fmt.Errorf("mark certificates expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Certificate, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()
	var out []*models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return out, nil
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

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var (
		c                             models.Certificate
		certID, instID                uuid.UUID
		recipientID, issuerID         *uuid.UUID
		expiry, revokedAt, anchoredAt sql.NullTime
		status, anchorStatus          string
	)
	if err := row.Scan(&certID, &c.VerificationID, &c.Title, &c.Description, &c.RecipientName,
		&c.RecipientEmail, &recipientID, &instID, &issuerID, &c.IssueDate, &expiry, &status,
		&c.RevocationReason, &revokedAt, &c.FileURL, &c.FileHash, &anchorStatus, &c.AnchorNetwork,
		&c.AnchorTxHash, &anchoredAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.CertificateID(certID)
	c.InstitutionID = id.InstitutionID(instID)
	c.RecipientUserID = database.TypedID[id.UserID](recipientID)
	c.IssuerID = database.TypedID[id.UserID](issuerID)
	c.ExpiryDate = database.TimePtr(expiry)
	c.RevokedAt = database.TimePtr(revokedAt)
	c.AnchoredAt = database.TimePtr(anchoredAt)
	c.Status = models.Status(status)
	c.AnchorStatus = models.AnchorStatus(anchorStatus)
	return &c, nil
}
