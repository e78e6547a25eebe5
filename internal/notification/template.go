package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	activitymodels "certhub/internal/activity/models"
)

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
  <h2 style="color: #b91c1c;">{{.Title}}</h2>
  <p>{{.Description}}</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td><strong>Action</strong></td><td>{{.Action}}</td></tr>
    <tr><td><strong>Category</strong></td><td>{{.Category}}</td></tr>
    <tr><td><strong>Status</strong></td><td>{{.Status}}</td></tr>
    <tr><td><strong>Time</strong></td><td>{{.Time}}</td></tr>
    {{- if .IPAddress}}
    <tr><td><strong>IP address</strong></td><td>{{.IPAddress}}</td></tr>
    {{- end}}
    {{- range .Details}}
    <tr><td><strong>{{.Key}}</strong></td><td>{{.Value}}</td></tr>
    {{- end}}
  </table>
  {{- if .Link}}
  <p><a href="{{.Link}}">View in the activity log</a></p>
  {{- end}}
</body>
</html>
`))

type detail struct {
	Key   string
	Value string
}

type alertView struct {
	Title       string
	Description string
	Action      string
	Category    string
	Status      string
	Time        string
	IPAddress   string
	Details     []detail
	Link        string
}

// subjectFor names the alert class in the subject line.
func subjectFor(r *activitymodels.Record) string {
	switch r.Category {
	case activitymodels.CategoryVerification:
		return "[certhub] Certificate verification failed"
	case activitymodels.CategoryBlockchain:
		return "[certhub] Blockchain check failed"
	}
	return fmt.Sprintf("[certhub] %s %s", r.Category, strings.ToLower(string(r.Status)))
}

func renderAlert(r *activitymodels.Record, baseURL string) (string, error) {
	view := alertView{
		Title:       subjectFor(r),
		Description: r.Description,
		Action:      r.Action,
		Category:    string(r.Category),
		Status:      string(r.Status),
		Time:        r.CreatedAt.UTC().Format(time.RFC1123),
		IPAddress:   r.IPAddress,
	}
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		view.Details = append(view.Details, detail{Key: k, Value: fmt.Sprint(r.Metadata[k])})
	}
	if baseURL != "" {
		view.Link = strings.TrimRight(baseURL, "/") + "/en/dashboard/admin/activity-logs/" + r.ID.String()
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return buf.String(), nil
}
