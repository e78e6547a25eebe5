package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certhub/internal/support/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestCreateUnknownCreator(t *testing.T) {
	store, mock := newMockStore(t)
	tk, err := models.NewTicket("s", "d", "", "", id.NewUserID(), nil, time.Now())
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO support_tickets`).WillReturnError(&pq.Error{Code: "23503"})

	assert.ErrorIs(t, store.Create(context.Background(), tk), sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListVisibilityBindsCreatorAndInstitution(t *testing.T) {
	store, mock := newMockStore(t)
	userID, instID := id.NewUserID(), id.NewInstitutionID()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM support_tickets WHERE \(creator_id = \$1 OR institution_id = \$2\) AND status = \$3`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "OPEN").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY updated_at DESC, id LIMIT \$4 OFFSET \$5`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "OPEN", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tickets, total, err := store.List(context.Background(), models.Filter{
		Status:  models.StatusOpen,
		Visible: models.Visibility{UserID: &userID, InstitutionID: &instID},
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tickets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesHidesInternalNotes(t *testing.T) {
	store, mock := newMockStore(t)
	ticketID := id.NewTicketID()

	mock.ExpectQuery(`FROM support_messages WHERE ticket_id = \$1 AND internal = FALSE ORDER BY created_at, id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticket_id", "author_id", "body", "internal", "created_at"}))

	msgs, err := store.ListMessages(context.Background(), ticketID, false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingTicket(t *testing.T) {
	store, mock := newMockStore(t)
	tk, err := models.NewTicket("s", "d", "", "", id.NewUserID(), nil, time.Now())
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE support_tickets`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Update(context.Background(), tk), sentinel.ErrNotFound)
}
