package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certhub/pkg/domain-errors"
)

func TestShouldAlert(t *testing.T) {
	categories := []Category{
		CategoryAuth, CategoryUser, CategoryInstitution, CategoryCertificate,
		CategoryVerification, CategoryBlockchain, CategorySupport, CategorySystem,
	}
	statuses := []Status{StatusSuccess, StatusFailure, StatusWarning}

	for _, c := range categories {
		for _, s := range statuses {
			r := &Record{Category: c, Status: s}
			want := s == StatusFailure && (c == CategoryVerification || c == CategoryBlockchain)
			assert.Equal(t, want, r.ShouldAlert(), "category=%s status=%s", c, s)
		}
	}
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("requires action", func(t *testing.T) {
		_, err := NewRecord(Event{Category: CategoryAuth, Status: StatusSuccess}, "", "", now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		_, err := NewRecord(Event{Action: "X", Category: "NOPE", Status: StatusSuccess}, "", "", now)
		require.Error(t, err)
	})

	t.Run("fills defaults", func(t *testing.T) {
		r, err := NewRecord(Event{Action: " USER_LOGIN ", Category: CategoryAuth, Status: StatusSuccess}, "10.0.0.1", "ua", now)
		require.NoError(t, err)
		assert.Equal(t, "USER_LOGIN", r.Action)
		assert.NotNil(t, r.Metadata)
		assert.False(t, r.ID.IsNil())
		assert.Equal(t, now, r.CreatedAt)
		assert.Equal(t, "10.0.0.1", r.IPAddress)
	})

	t.Run("cleans client supplied text", func(t *testing.T) {
		ev := Event{
			Action:   ActionVerifyByFile,
			Category: CategoryVerification,
			Status:   StatusFailure,
			Metadata: map[string]any{
				"file_name": "diploma\x00.pdf",
				"nested":    map[string]any{"hops": []any{"a\xffb"}},
				"size":      42,
			},
		}
		r, err := NewRecord(ev, "10.0.0.1\xff", "Mozilla\xff\xfe/5.0", now)
		require.NoError(t, err)

		assert.True(t, utf8.ValidString(r.UserAgent))
		assert.Equal(t, "Mozilla\uFFFD/5.0", r.UserAgent)
		assert.Equal(t, "10.0.0.1\uFFFD", r.IPAddress)
		assert.Equal(t, "diploma\uFFFD.pdf", r.Metadata["file_name"])
		assert.Equal(t, []any{"a\uFFFDb"}, r.Metadata["nested"].(map[string]any)["hops"])
		assert.Equal(t, 42, r.Metadata["size"])
		assert.True(t, r.ShouldAlert())
	})

	t.Run("caps lengths on rune boundaries", func(t *testing.T) {
		desc := strings.Repeat("é", maxDescriptionLen+5)
		r, err := NewRecord(Event{Action: "X", Category: CategorySystem, Status: StatusSuccess, Description: desc},
			"", strings.Repeat("ü", maxUserAgentLen+1), now)
		require.NoError(t, err)

		assert.True(t, utf8.ValidString(r.Description))
		assert.Equal(t, maxDescriptionLen, utf8.RuneCountInString(r.Description))
		assert.Equal(t, maxUserAgentLen, utf8.RuneCountInString(r.UserAgent))
	})
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "plain", CleanText("plain", 10))
	assert.Equal(t, "ab", CleanText("abc", 2))
	assert.Equal(t, "日本", CleanText("日本語", 2))
	assert.Equal(t, "\uFFFD", CleanText("\xff\xfe\xfd", 5))
}

func TestFilterNormalize(t *testing.T) {
	f := Filter{Limit: 10000, Offset: -3}
	f.Normalize()
	assert.Equal(t, MaxPageSize, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f = Filter{}
	f.Normalize()
	assert.Equal(t, DefaultPageSize, f.Limit)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("verification")
	require.NoError(t, err)
	assert.Equal(t, CategoryVerification, c)

	_, err = ParseCategory("bogus")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
