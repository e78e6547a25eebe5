package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func validParams() IssueParams {
	return IssueParams{
		Title:          "  Master of Science ",
		RecipientName:  "Ada Lovelace",
		RecipientEmail: "Ada@Example.com",
		InstitutionID:  id.NewInstitutionID(),
	}
}

func TestNewCertificate(t *testing.T) {
	c, err := NewCertificate(validParams(), "CH-2345-6789-ABCD", now)
	require.NoError(t, err)
	assert.Equal(t, "Master of Science", c.Title)
	assert.Equal(t, "ada@example.com", c.RecipientEmail)
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, AnchorNone, c.AnchorStatus)
	assert.Equal(t, now, c.IssueDate)
}

func TestNewCertificateRejects(t *testing.T) {
	past := now.Add(-time.Hour)
	cases := map[string]func(p *IssueParams){
		"empty title":         func(p *IssueParams) { p.Title = " " },
		"empty recipient":     func(p *IssueParams) { p.RecipientName = "" },
		"bad email":           func(p *IssueParams) { p.RecipientEmail = "ada" },
		"no institution":      func(p *IssueParams) { p.InstitutionID = id.InstitutionID{} },
		"expiry before issue": func(p *IssueParams) { p.ExpiryDate = &past },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validParams()
			mutate(&p)
			_, err := NewCertificate(p, "CH-2345-6789-ABCD", now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}

	_, err := NewCertificate(validParams(), "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestRevoke(t *testing.T) {
	c, err := NewCertificate(validParams(), "CH-2345-6789-ABCD", now)
	require.NoError(t, err)

	assert.Error(t, c.Revoke("  ", now))
	require.NoError(t, c.Revoke("issued in error", now))
	assert.Equal(t, StatusRevoked, c.Status)
	assert.Equal(t, "issued in error", c.RevocationReason)
	require.NotNil(t, c.RevokedAt)

	assert.True(t, dErrors.HasCode(c.Revoke("again", now), dErrors.CodeInvariantViolation))

	title := "Changed"
	assert.True(t, dErrors.HasCode(c.ApplyUpdate(Update{Title: &title}, now), dErrors.CodeInvariantViolation))
}

func TestEffectiveStatus(t *testing.T) {
	p := validParams()
	exp := now.Add(24 * time.Hour)
	p.ExpiryDate = &exp
	c, err := NewCertificate(p, "CH-2345-6789-ABCD", now)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, c.EffectiveStatus(now))
	assert.Equal(t, StatusExpired, c.EffectiveStatus(now.Add(48*time.Hour)))
}

func TestApplyUpdateReactivatesExpired(t *testing.T) {
	p := validParams()
	exp := now.Add(time.Hour)
	p.ExpiryDate = &exp
	c, err := NewCertificate(p, "CH-2345-6789-ABCD", now)
	require.NoError(t, err)
	c.Status = StatusExpired

	later := now.Add(2 * time.Hour)
	newExpiry := now.Add(365 * 24 * time.Hour)
	require.NoError(t, c.ApplyUpdate(Update{ExpiryDate: &newExpiry}, later))
	assert.Equal(t, StatusActive, c.Status)

	require.NoError(t, c.ApplyUpdate(Update{ClearExpiry: true}, later))
	assert.Nil(t, c.ExpiryDate)
}

func TestApplyUpdateIsAtomic(t *testing.T) {
	c, err := NewCertificate(validParams(), "CH-2345-6789-ABCD", now)
	require.NoError(t, err)
	title := "New Title"
	bad := "nope"
	err = c.ApplyUpdate(Update{Title: &title, RecipientEmail: &bad}, now)
	require.Error(t, err)
	assert.Equal(t, "Master of Science", c.Title)
}

func TestAnchorLifecycle(t *testing.T) {
	c, err := NewCertificate(validParams(), "CH-2345-6789-ABCD", now)
	require.NoError(t, err)
	assert.False(t, c.IsAnchored())

	c.AttachFile("https://cdn.example/c.pdf", "ABCDEF", now)
	assert.Equal(t, "abcdef", c.FileHash)
	c.StartAnchor("polygon", now)
	assert.Equal(t, AnchorPending, c.AnchorStatus)
	c.ConfirmAnchor("0xdeadbeef", now, now)
	assert.True(t, c.IsAnchored())

	c.FailAnchor(now)
	assert.False(t, c.IsAnchored())
}

func TestFilterNormalize(t *testing.T) {
	f := Filter{Limit: 1000, Offset: -3, Search: "  x "}
	f.Normalize()
	assert.Equal(t, MaxPageSize, f.Limit)
	assert.Zero(t, f.Offset)
	assert.Equal(t, "x", f.Search)
}
