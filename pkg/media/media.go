// Package media uploads files to a Cloudinary-compatible media host.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/go-resty/resty/v2"

	"certhub/internal/platform/config"
	"certhub/pkg/platform/sentinel"
)

// ErrDisabled is returned by Upload when no media host is configured.
var ErrDisabled = fmt.Errorf("media host not configured: %w", sentinel.ErrUnavailable)

// File is one upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	// Subfolder is appended to the configured folder, e.g. "certificates".
	Subfolder string
}

// Asset is the stored file as reported by the host.
type Asset struct {
	URL          string
	PublicID     string
	Bytes        int64
	Format       string
	ResourceType string
}

type uploadResponse struct {
	SecureURL    string `json:"secure_url"`
	URL          string `json:"url"`
	PublicID     string `json:"public_id"`
	Bytes        int64  `json:"bytes"`
	Format       string `json:"format"`
	ResourceType string `json:"resource_type"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client performs unsigned preset uploads.
type Client struct {
	http    *resty.Client
	cfg     config.Media
	logger  *slog.Logger
	enabled bool
}

// New builds a client. A disabled config yields a client whose Upload
// always returns ErrDisabled.
func New(cfg config.Media, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json")
	httpClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})

	return &Client{
		http:    httpClient,
		cfg:     cfg,
		logger:  logger,
		enabled: cfg.Enabled(),
	}
}

// Enabled reports whether uploads can succeed.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Upload sends f to the host and returns its public URL.
func (c *Client) Upload(ctx context.Context, f File) (*Asset, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if len(f.Data) == 0 {
		return nil, errors.New("media upload: empty file")
	}

	form := map[string]string{
		"upload_preset": c.cfg.UploadPreset,
		"folder":        path.Join(c.cfg.Folder, f.Subfolder),
	}
	if c.cfg.APIKey != "" {
		form["api_key"] = c.cfg.APIKey
	}

	var result uploadResponse
	var failure errorResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetMultipartField("file", f.Name, f.ContentType, bytes.NewReader(f.Data)).
		SetResult(&result).
		SetError(&failure).
		Post("/" + c.cfg.CloudName + "/auto/upload")
	if err != nil {
		c.logger.ErrorContext(ctx, "media upload failed",
			"file_name", f.Name,
			"error", err,
		)
		return nil, fmt.Errorf("media upload: %w", err)
	}
	if resp.IsError() {
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.ErrorContext(ctx, "media host rejected upload",
			"file_name", f.Name,
			"status_code", resp.StatusCode(),
			"message", msg,
		)
		return nil, fmt.Errorf("media upload rejected (%d): %s", resp.StatusCode(), msg)
	}

	url := result.SecureURL
	if url == "" {
		url = result.URL
	}
	if url == "" {
		return nil, errors.New("media upload: response missing url")
	}
	c.logger.InfoContext(ctx, "media uploaded",
		"file_name", f.Name,
		"public_id", result.PublicID,
		"bytes", result.Bytes,
		"duration", time.Since(start),
	)
	return &Asset{
		URL:          url,
		PublicID:     result.PublicID,
		Bytes:        result.Bytes,
		Format:       result.Format,
		ResourceType: result.ResourceType,
	}, nil
}
