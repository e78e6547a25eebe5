package service

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var messagePolicy = bluemonday.UGCPolicy()

// renderMessage converts a Markdown message body to sanitized HTML.
func renderMessage(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(messagePolicy.Sanitize(buf.String())), nil
}
