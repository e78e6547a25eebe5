package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certhub/internal/certificate/models"
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

func TestCreateDuplicateVerificationID(t *testing.T) {
	store, mock := newMockStore(t)
	c, err := models.NewCertificate(models.IssueParams{
		Title: "T", RecipientName: "R", RecipientEmail: "r@x.io", InstitutionID: id.NewInstitutionID(),
	}, "CH-AAAA-AAAA-AAAA", time.Now())
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO certificates`).WillReturnError(&pq.Error{Code: "23505"})
	assert.ErrorIs(t, store.Create(context.Background(), c), sentinel.ErrConflict)

	mock.ExpectExec(`INSERT INTO certificates`).WillReturnError(&pq.Error{Code: "23503"})
	assert.ErrorIs(t, store.Create(context.Background(), c), sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByVerificationIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM certificates WHERE verification_id = \$1`).
		WithArgs("CH-NONE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindByVerificationID(context.Background(), "CH-NONE")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListOwnerScopeBindsBothArguments(t *testing.T) {
	store, mock := newMockStore(t)
	userID := id.NewUserID()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM certificates WHERE \(recipient_user_id = \$1 OR recipient_email = \$2\) AND status = \$3`).
		WithArgs(sqlmock.AnyArg(), "me@x.io", "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY issue_date DESC, id LIMIT \$4 OFFSET \$5`).
		WithArgs(sqlmock.AnyArg(), "me@x.io", "ACTIVE", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	items, total, err := store.List(context.Background(), models.Filter{
		Owner:  &models.Owner{UserID: userID, Email: "me@x.io"},
		Status: models.StatusActive,
		Limit:  20,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExpiredUsesArray(t *testing.T) {
	store, mock := newMockStore(t)
	a, b := id.NewCertificateID(), id.NewCertificateID()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE certificates SET status = 'EXPIRED'`).
		WithArgs(pq.Array([]string{a.String(), b.String()}), now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.MarkExpired(context.Background(), []id.CertificateID{a, b}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = store.MarkExpired(context.Background(), nil, now)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM certificates`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Delete(context.Background(), id.NewCertificateID()), sentinel.ErrNotFound)
}
