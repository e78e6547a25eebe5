package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	activitymodels "certhub/internal/activity/models"
	authmodels "certhub/internal/auth/models"
	"certhub/internal/notification/mailer"
	"certhub/internal/notification/metrics"
	"certhub/internal/notification/mocks"
	id "certhub/pkg/domain"
	"certhub/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Recipients,Mailer

type NotificationSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	recipients *mocks.MockRecipients
	mailer     *mocks.MockMailer
	metrics    *metrics.Metrics
	service    *Service
}

func TestNotificationSuite(t *testing.T) {
	suite.Run(t, new(NotificationSuite))
}

func (s *NotificationSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.recipients = mocks.NewMockRecipients(s.ctrl)
	s.mailer = mocks.NewMockMailer(s.ctrl)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = New(s.recipients, s.mailer,
		WithMetrics(s.metrics),
		WithConcurrency(2),
		WithBaseURL("https://certhub.example/"),
	)
}

func (s *NotificationSuite) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.service.Shutdown(ctx))
}

func admins(n int) []*authmodels.User {
	out := make([]*authmodels.User, 0, n)
	for i := range n {
		u, _ := authmodels.NewUser("admin"+string(rune('a'+i))+"@certhub.example", "", "hash", id.RoleAdmin, time.Now())
		out = append(out, u)
	}
	return out
}

func failureRecord() *activitymodels.Record {
	return &activitymodels.Record{
		ID:          id.NewActivityLogID(),
		Action:      activitymodels.ActionVerifyByID,
		Category:    activitymodels.CategoryVerification,
		Status:      activitymodels.StatusFailure,
		Description: "Verification ID not found",
		Metadata:    map[string]any{"verification_id": "CH-AAAA-BBBB-CCCC"},
		IPAddress:   "203.0.113.9",
		CreatedAt:   time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC),
	}
}

func (s *NotificationSuite) TestFansOutToEveryAdmin() {
	list := admins(3)
	s.recipients.EXPECT().ListActiveByRole(gomock.Any(), id.RoleAdmin).Return(list, nil)

	var (
		mu   sync.Mutex
		sent []string
	)
	s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg mailer.Message) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, msg.To)
		s.Equal("[certhub] Certificate verification failed", msg.Subject)
		s.Contains(msg.HTML, "CH-AAAA-BBBB-CCCC")
		s.Contains(msg.HTML, "https://certhub.example/en/dashboard/admin/activity-logs/")
		return nil
	}).Times(3)

	s.service.NotifyAdmins(context.Background(), failureRecord())
	s.drain()

	s.ElementsMatch([]string{list[0].Email, list[1].Email, list[2].Email}, sent)
	s.Equal(float64(3), testutil.ToFloat64(s.metrics.Sent))
	s.Equal(float64(0), testutil.ToFloat64(s.metrics.InFlight))
}

func (s *NotificationSuite) TestFailedRecipientDoesNotStopOthers() {
	list := admins(3)
	s.recipients.EXPECT().ListActiveByRole(gomock.Any(), id.RoleAdmin).Return(list, nil)
	s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg mailer.Message) error {
		if msg.To == list[1].Email {
			return errors.New("mailbox unavailable")
		}
		return nil
	}).Times(3)

	s.service.NotifyAdmins(context.Background(), failureRecord())
	s.drain()

	s.Equal(float64(2), testutil.ToFloat64(s.metrics.Sent))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Failed))
}

func (s *NotificationSuite) TestSendOutlivesRequestCancellation() {
	s.recipients.EXPECT().ListActiveByRole(gomock.Any(), id.RoleAdmin).Return(admins(1), nil)
	s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ mailer.Message) error {
		s.NoError(ctx.Err())
		s.Equal("req-42", requestcontext.RequestID(ctx))
		_, hasDeadline := ctx.Deadline()
		s.True(hasDeadline)
		return nil
	})

	ctx, cancel := context.WithCancel(requestcontext.WithRequestID(context.Background(), "req-42"))
	s.service.NotifyAdmins(ctx, failureRecord())
	cancel()
	s.drain()
}

func (s *NotificationSuite) TestRecipientLookupFailure() {
	s.recipients.EXPECT().ListActiveByRole(gomock.Any(), id.RoleAdmin).Return(nil, errors.New("db down"))

	s.service.NotifyAdmins(context.Background(), failureRecord())
	s.drain()

	s.Equal(float64(0), testutil.ToFloat64(s.metrics.Sent))
}

func (s *NotificationSuite) TestNoAdmins() {
	s.recipients.EXPECT().ListActiveByRole(gomock.Any(), id.RoleAdmin).Return(nil, nil)

	s.service.NotifyAdmins(context.Background(), failureRecord())
	s.drain()
}

func (s *NotificationSuite) TestDropsAfterShutdown() {
	s.drain()
	s.service.NotifyAdmins(context.Background(), failureRecord())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Skipped))
}

func TestSkippedWithoutSMTP(t *testing.T) {
	ctrl := gomock.NewController(t)
	recipients := mocks.NewMockRecipients(ctrl)
	m := metrics.NewWith(prometheus.NewRegistry())
	svc := New(recipients, nil, WithMetrics(m))

	assert.False(t, svc.Enabled())
	svc.NotifyAdmins(context.Background(), failureRecord())
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Skipped))
}

func TestShutdownHonorsDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	recipients := mocks.NewMockRecipients(ctrl)
	mail := mocks.NewMockMailer(ctrl)
	release := make(chan struct{})
	recipients.EXPECT().ListActiveByRole(gomock.Any(), id.RoleAdmin).Return(admins(1), nil)
	mail.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, mailer.Message) error {
		<-release
		return nil
	})
	svc := New(recipients, mail)
	svc.NotifyAdmins(context.Background(), failureRecord())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestRenderAlertEscapesContent(t *testing.T) {
	r := failureRecord()
	r.Description = `<script>alert("x")</script>`
	r.Metadata = map[string]any{"file_name": "<b>cert.pdf</b>"}

	html, err := renderAlert(r, "")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "&lt;b&gt;cert.pdf&lt;/b&gt;")
	assert.False(t, strings.Contains(html, "View in the activity log"))
}

func TestSubjectForBlockchain(t *testing.T) {
	r := failureRecord()
	r.Category = activitymodels.CategoryBlockchain
	assert.Equal(t, "[certhub] Blockchain check failed", subjectFor(r))
}
