package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhere(t *testing.T) {
	var w Where
	assert.Empty(t, w.SQL())

	w.Add("role = ?", "ADMIN")
	w.Add("(email ILIKE ? OR name ILIKE ?)", Contains("jane"))
	assert.Equal(t, " WHERE role = $1 AND (email ILIKE $2 OR name ILIKE $2)", w.SQL())
	assert.Equal(t, []any{"ADMIN", "%jane%"}, w.Args())

	w.Add("(user_id = ? OR email = ?)", "u-1", "a@b.io")
	assert.Equal(t, " WHERE role = $1 AND (email ILIKE $2 OR name ILIKE $2) AND (user_id = $3 OR email = $4)", w.SQL())

	page, args := w.Page(20, 40)
	assert.Equal(t, " LIMIT $5 OFFSET $6", page)
	assert.Equal(t, []any{"ADMIN", "%jane%", "u-1", "a@b.io", 20, 40}, args)
	assert.Len(t, w.Args(), 4)
}

func TestContainsEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\% off\_now\\%`, Contains(`50% off_now\`))
}
