package database

import (
	"strconv"
	"strings"
)

// Where accumulates AND-ed conditions with numbered placeholders. With one
// argument every "?" in the clause refers to it; with several, the n-th "?"
// takes the n-th argument.
type Where struct {
	clauses []string
	args    []any
}

func (w *Where) Add(clause string, args ...any) {
	if len(args) == 1 {
		w.args = append(w.args, args[0])
		w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
		return
	}
	var b strings.Builder
	for _, arg := range args {
		before, after, ok := strings.Cut(clause, "?")
		if !ok {
			break
		}
		w.args = append(w.args, arg)
		b.WriteString(before)
		b.WriteString("$" + strconv.Itoa(len(w.args)))
		clause = after
	}
	b.WriteString(clause)
	w.clauses = append(w.clauses, b.String())
}

// SQL returns " WHERE ..." or an empty string.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *Where) Args() []any {
	return w.args
}

// Page appends LIMIT and OFFSET placeholders and returns the clause with the full argument list.
func (w *Where) Page(limit, offset int) (string, []any) {
	args := append(append([]any{}, w.args...), limit, offset)
	n := len(args)
	return " LIMIT $" + strconv.Itoa(n-1) + " OFFSET $" + strconv.Itoa(n), args
}

// Contains returns an ILIKE pattern matching s anywhere, with wildcards in s escaped.
func Contains(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
