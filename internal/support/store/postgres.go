package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certhub/internal/platform/database"
	"certhub/internal/support/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// PostgresStore persists tickets, their messages and attachments.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ticketColumns = `id, subject, description, status, priority, category, creator_id,
	institution_id, assignee_id, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Ticket) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO support_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(t.ID), t.Subject, t.Description, string(t.Status), string(t.Priority), t.Category,
		uuid.UUID(t.CreatorID), database.NullUUID(t.InstitutionID), database.NullUUID(t.AssigneeID),
		t.CreatedAt, t.UpdatedAt,
	)
	return translateInsert("ticket", err)
}

func (s *PostgresStore) FindByID(ctx context.Context, ticketID id.TicketID) (*models.Ticket, error) {
	row := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, uuid.UUID(ticketID))
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, t *models.Ticket) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE support_tickets
		SET subject = $2, description = $3, status = $4, priority = $5, category = $6,
			assignee_id = $7, updated_at = $8
		WHERE id = $1
	`,
		uuid.UUID(t.ID), t.Subject, t.Description, string(t.Status), string(t.Priority), t.Category,
		database.NullUUID(t.AssigneeID), t.UpdatedAt,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("update ticket: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the ticket; messages and attachments cascade.
func (s *PostgresStore) Delete(ctx context.Context, ticketID id.TicketID) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM support_tickets WHERE id = $1`, uuid.UUID(ticketID))
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]*models.Ticket, int, error) {
	var w database.Where
	switch v := f.Visible; {
	case v.UserID != nil && v.InstitutionID != nil:
		w.Add("(creator_id = ? OR institution_id = ?)", uuid.UUID(*v.UserID), uuid.UUID(*v.InstitutionID))
	case v.UserID != nil:
		w.Add("creator_id = ?", uuid.UUID(*v.UserID))
	case v.InstitutionID != nil:
		w.Add("institution_id = ?", uuid.UUID(*v.InstitutionID))
	}
	if f.Status != "" {
		w.Add("status = ?", string(f.Status))
	}
	if f.Priority != "" {
		w.Add("priority = ?", string(f.Priority))
	}

	conn := database.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM support_tickets`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}
	page, args := w.Page(f.Limit, f.Offset)
	rows, err := conn.QueryContext(ctx, `SELECT `+ticketColumns+` FROM support_tickets`+w.SQL()+
		` ORDER BY updated_at DESC, id`+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	var out []*models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tickets: %w", err)
	}
	return out, total, nil
}

// CountOpen counts tickets in OPEN or IN_PROGRESS.
func (s *PostgresStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM support_tickets WHERE status IN ('OPEN', 'IN_PROGRESS')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open tickets: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, m *models.Message) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO support_messages (id, ticket_id, author_id, body, internal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(m.ID), uuid.UUID(m.TicketID), uuid.UUID(m.AuthorID), m.Body, m.Internal, m.CreatedAt)
	return translateInsert("message", err)
}

// ListMessages returns the thread oldest first. Internal notes are left out
// unless includeInternal is set.
func (s *PostgresStore) ListMessages(ctx context.Context, ticketID id.TicketID, includeInternal bool) ([]*models.Message, error) {
	query := `SELECT id, ticket_id, author_id, body, internal, created_at
		FROM support_messages WHERE ticket_id = $1`
	if !includeInternal {
		query += ` AND internal = FALSE`
	}
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, query+` ORDER BY created_at, id`, uuid.UUID(ticketID))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []*models.Message
	for rows.Next() {
		var (
			m                  models.Message
			msgID, tid, author uuid.UUID
		)
		if err := rows.Scan(&msgID, &tid, &author, &m.Body, &m.Internal, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = id.MessageID(msgID)
		m.TicketID = id.TicketID(tid)
		m.AuthorID = id.UserID(author)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddAttachment(ctx context.Context, a *models.Attachment) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO support_attachments
			(id, ticket_id, message_id, file_name, content_type, size_bytes, url, uploader_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(a.ID), uuid.UUID(a.TicketID), database.NullUUID(a.MessageID), a.FileName,
		a.ContentType, a.SizeBytes, a.URL, uuid.UUID(a.UploaderID), a.CreatedAt,
	)
	return translateInsert("attachment", err)
}

func (s *PostgresStore) ListAttachments(ctx context.Context, ticketID id.TicketID) ([]*models.Attachment, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, ticket_id, message_id, file_name, content_type, size_bytes, url, uploader_id, created_at
		FROM support_attachments WHERE ticket_id = $1 ORDER BY created_at, id
	`, uuid.UUID(ticketID))
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()
	var out []*models.Attachment
	for rows.Next() {
		var (
			a                    models.Attachment
			attID, tid, uploader uuid.UUID
			msgID                *uuid.UUID
		)
		if err := rows.Scan(&attID, &tid, &msgID, &a.FileName, &a.ContentType, &a.SizeBytes,
			&a.URL, &uploader, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.ID = id.AttachmentID(attID)
		a.TicketID = id.TicketID(tid)
		a.MessageID = database.TypedID[id.MessageID](msgID)
		a.UploaderID = id.UserID(uploader)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return out, nil
}

func translateInsert(kind string, err error) error {
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if database.IsForeignKeyViolation(err) {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("insert %s: %w", kind, err)
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

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var (
		t                 models.Ticket
		ticketID, creator uuid.UUID
		instID, assignee  *uuid.UUID
		status, priority  string
	)
	if err := row.Scan(&ticketID, &t.Subject, &t.Description, &status, &priority, &t.Category,
		&creator, &instID, &assignee, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ID = id.TicketID(ticketID)
	t.CreatorID = id.UserID(creator)
	t.InstitutionID = database.TypedID[id.InstitutionID](instID)
	t.AssigneeID = database.TypedID[id.UserID](assignee)
	t.Status = models.Status(status)
	t.Priority = models.Priority(priority)
	return &t, nil
}
