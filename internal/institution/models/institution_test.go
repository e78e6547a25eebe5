package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certhub/pkg/domain-errors"
)

var now = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

func TestNewInstitution(t *testing.T) {
	inst, err := NewInstitution("  Université de Lyon ", TypeUniversity, StatusActive, Profile{
		Email:   "Registrar@Univ-Lyon.fr",
		Website: "https://univ-lyon.fr",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Université de Lyon", inst.Name)
	assert.Equal(t, "registrar@univ-lyon.fr", inst.Email)
	assert.True(t, inst.IsActive())

	bad := []struct {
		name string
		fn   func() error
	}{
		{"empty name", func() error { _, err := NewInstitution(" ", TypeSchool, StatusActive, Profile{}, now); return err }},
		{"long name", func() error {
			_, err := NewInstitution(strings.Repeat("é", 201), TypeSchool, StatusActive, Profile{}, now)
			return err
		}},
		{"type", func() error { _, err := NewInstitution("X", Type("CLUB"), StatusActive, Profile{}, now); return err }},
		{"website", func() error {
			_, err := NewInstitution("X", TypeSchool, StatusActive, Profile{Website: "javascript:alert(1)"}, now)
			return err
		}},
		{"email", func() error {
			_, err := NewInstitution("X", TypeSchool, StatusActive, Profile{Email: "nope"}, now)
			return err
		}},
	}
	for _, tc := range bad {
		assert.True(t, dErrors.HasCode(tc.fn(), dErrors.CodeInvariantViolation), tc.name)
	}
}

func TestNameAtLimitAccepted(t *testing.T) {
	_, err := NewInstitution(strings.Repeat("é", 200), TypeOther, StatusPending, Profile{}, now)
	assert.NoError(t, err)
}

func TestChangeStatus(t *testing.T) {
	inst, err := NewInstitution("Acme Academy", TypeTrainingCenter, StatusPending, Profile{}, now)
	require.NoError(t, err)

	require.NoError(t, inst.ChangeStatus(StatusActive, now))
	require.NoError(t, inst.ChangeStatus(StatusSuspended, now))
	assert.Error(t, inst.ChangeStatus(StatusSuspended, now), "no-op transition")
	assert.Error(t, inst.ChangeStatus(StatusPending, now), "cannot return to pending")
}

func TestParseMemberRole(t *testing.T) {
	r, err := ParseMemberRole("")
	require.NoError(t, err)
	assert.Equal(t, MemberStaff, r)

	r, err = ParseMemberRole("owner")
	require.NoError(t, err)
	assert.Equal(t, MemberOwner, r)

	_, err = ParseMemberRole("boss")
	assert.Error(t, err)
}
