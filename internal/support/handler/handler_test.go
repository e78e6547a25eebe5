package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	authmodels "certhub/internal/auth/models"
	userstore "certhub/internal/auth/store/user"
	"certhub/internal/platform/logger"
	"certhub/internal/support/service"
	"certhub/internal/support/service/mocks"
	supportstore "certhub/internal/support/store"
	id "certhub/pkg/domain"
	"certhub/pkg/media"
	"certhub/pkg/testutil"
)

type fixture struct {
	router   http.Handler
	uploader *mocks.MockUploader
	admin    *authmodels.User
	user     id.UserID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := userstore.NewInMemory()
	admin, err := authmodels.NewUser("admin@certhub.io", "Admin", "hash", id.RoleAdmin, time.Now())
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), admin))

	uploader := mocks.NewMockUploader(gomock.NewController(t))
	svc := service.New(supportstore.NewInMemory(), users, service.WithUploader(uploader))
	h := New(svc, logger.Discard(), 1024)
	r := chi.NewRouter()
	r.Route("/api", h.Register)
	return &fixture{router: r, uploader: uploader, admin: admin, user: id.NewUserID()}
}

func (f *fixture) open(t *testing.T) TicketResponse {
	t.Helper()
	req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPost, "/api/support/tickets", map[string]any{
		"subject":     "Cannot download certificate",
		"description": "The PDF link returns 404",
		"priority":    "high",
	}), f.user)
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[TicketResponse](t, rr)
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)

	assert.Equal(t, "OPEN", tk.Status)
	assert.Equal(t, "HIGH", tk.Priority)
	assert.Equal(t, f.user.String(), tk.CreatorID)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	for name, body := range map[string]map[string]any{
		"missing subject": {"description": "d"},
		"missing body":    {"subject": "s"},
		"bad priority":    {"subject": "s", "description": "d", "priority": "whenever"},
	} {
		t.Run(name, func(t *testing.T) {
			req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPost, "/api/support/tickets", body), f.user)
			testutil.AssertStatus(t, testutil.DoRequest(f.router, req), http.StatusBadRequest)
		})
	}
}

func TestListTickets(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	t.Run("owner", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.AsUser(testutil.NewRequest(t, http.MethodGet, "/api/support/tickets?priority=HIGH"), f.user))
		testutil.AssertStatusOK(t, rr)
		page := testutil.UnmarshalResponse[ListResponse](t, rr)
		assert.Equal(t, 1, page.Total)
	})

	t.Run("stranger", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.AsUser(testutil.NewRequest(t, http.MethodGet, "/api/support/tickets"), id.NewUserID()))
		testutil.AssertStatusOK(t, rr)
		page := testutil.UnmarshalResponse[ListResponse](t, rr)
		assert.Zero(t, page.Total)
		assert.NotNil(t, page.Items)
	})

	t.Run("bad status", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.AsAdmin(testutil.NewRequest(t, http.MethodGet, "/api/support/tickets?status=PARKED"), f.admin.ID))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestThread(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	path := "/api/support/tickets/" + tk.ID

	t.Run("user reply", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPost, path+"/messages", map[string]any{"body": "Still broken"}), f.user)
		testutil.AssertStatus(t, testutil.DoRequest(f.router, req), http.StatusCreated)
	})

	t.Run("user cannot post internal note", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPost, path+"/messages", map[string]any{"body": "x", "internal": true}), f.user)
		testutil.AssertStatusAndError(t, testutil.DoRequest(f.router, req), http.StatusForbidden, "forbidden")
	})

	t.Run("admin note", func(t *testing.T) {
		req := testutil.AsAdmin(testutil.NewJSONRequest(t, http.MethodPost, path+"/messages", map[string]any{"body": "Check CDN logs", "internal": true}), f.admin.ID)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		m := testutil.UnmarshalResponse[MessageResponse](t, rr)
		assert.True(t, m.Internal)
		assert.Equal(t, "<p>Check CDN logs</p>", m.Body)
	})

	t.Run("user view hides note", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.AsUser(testutil.NewRequest(t, http.MethodGet, path), f.user))
		testutil.AssertStatusOK(t, rr)
		d := testutil.UnmarshalResponse[DetailsResponse](t, rr)
		require.Len(t, d.Messages, 1)
		assert.Equal(t, "<p>Still broken</p>", d.Messages[0].Body)
	})

	t.Run("admin view", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.AsAdmin(testutil.NewRequest(t, http.MethodGet, path), f.admin.ID))
		testutil.AssertStatusOK(t, rr)
		d := testutil.UnmarshalResponse[DetailsResponse](t, rr)
		assert.Len(t, d.Messages, 2)
		assert.Equal(t, tk.ID, d.ID)
	})
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	path := "/api/support/tickets/" + tk.ID

	t.Run("user cannot assign", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{"assignee_id": f.admin.ID.String()}), f.user)
		testutil.AssertStatus(t, testutil.DoRequest(f.router, req), http.StatusForbidden)
	})

	t.Run("admin assigns and resolves", func(t *testing.T) {
		req := testutil.AsAdmin(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{
			"assignee_id": f.admin.ID.String(),
			"status":      "resolved",
		}), f.admin.ID)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusOK(t, rr)
		got := testutil.UnmarshalResponse[TicketResponse](t, rr)
		assert.Equal(t, "RESOLVED", got.Status)
		assert.Equal(t, f.admin.ID.String(), got.AssigneeID)
	})

	t.Run("bad status", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{"status": "gone"}), f.user)
		testutil.AssertStatus(t, testutil.DoRequest(f.router, req), http.StatusBadRequest)
	})

	t.Run("user cannot delete", func(t *testing.T) {
		testutil.AssertStatus(t, testutil.DoRequest(f.router, testutil.AsUser(testutil.NewRequest(t, http.MethodDelete, path), f.user)), http.StatusForbidden)
	})

	t.Run("admin deletes", func(t *testing.T) {
		testutil.AssertStatus(t, testutil.DoRequest(f.router, testutil.AsAdmin(testutil.NewRequest(t, http.MethodDelete, path), f.admin.ID)), http.StatusNoContent)
		testutil.AssertStatus(t, testutil.DoRequest(f.router, testutil.AsAdmin(testutil.NewRequest(t, http.MethodGet, path), f.admin.ID)), http.StatusNotFound)
	})
}

func TestAttachmentUpload(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	path := "/api/support/tickets/" + tk.ID + "/attachments"

	t.Run("uploaded", func(t *testing.T) {
		f.uploader.EXPECT().Enabled().Return(true)
		f.uploader.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(&media.Asset{URL: "https://cdn.example.com/a.txt"}, nil)
		req := testutil.AsUser(testutil.NewMultipartRequest(t, http.MethodPost, path, "file", "a.txt", []byte("stack trace"), nil), f.user)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		a := testutil.UnmarshalResponse[AttachmentResponse](t, rr)
		assert.Equal(t, "a.txt", a.FileName)
		assert.Equal(t, int64(11), a.SizeBytes)
		assert.Equal(t, "https://cdn.example.com/a.txt", a.URL)
	})

	t.Run("too large", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewMultipartRequest(t, http.MethodPost, path, "file", "big.bin", make([]byte, 4096), nil), f.user)
		testutil.AssertStatus(t, testutil.DoRequest(f.router, req), http.StatusBadRequest)
	})

	t.Run("bad message id", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewMultipartRequest(t, http.MethodPost, path, "file", "a.txt", []byte("x"),
			map[string]string{"message_id": "nope"}), f.user)
		testutil.AssertStatus(t, testutil.DoRequest(f.router, req), http.StatusBadRequest)
	})

	t.Run("media host disabled", func(t *testing.T) {
		f.uploader.EXPECT().Enabled().Return(false)
		req := testutil.AsUser(testutil.NewMultipartRequest(t, http.MethodPost, path, "file", "a.txt", []byte("x"), nil), f.user)
		testutil.AssertStatus(t, testutil.DoRequest(f.router, req), http.StatusServiceUnavailable)
	})
}
