package adapters

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"certhub/internal/activity/models"
)

// Publisher is the subset of the Kafka producer the stream needs.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte)
}

// StreamSink publishes stored activity records for downstream SIEM consumers.
type StreamSink struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewStreamSink(publisher Publisher, logger *slog.Logger) *StreamSink {
	return &StreamSink{publisher: publisher, logger: logger}
}

type streamPayload struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	Category      string         `json:"category"`
	Status        string         `json:"status"`
	UserID        string         `json:"user_id,omitempty"`
	InstitutionID string         `json:"institution_id,omitempty"`
	CertificateID string         `json:"certificate_id,omitempty"`
	Description   string         `json:"description,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// Publish is keyed by category so one category stays ordered per partition.
func (s *StreamSink) Publish(ctx context.Context, r *models.Record) {
	payload := streamPayload{
		ID:          r.ID.String(),
		Action:      r.Action,
		Category:    string(r.Category),
		Status:      string(r.Status),
		Description: r.Description,
		Metadata:    r.Metadata,
		IPAddress:   r.IPAddress,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.UserID != nil {
		payload.UserID = r.UserID.String()
	}
	if r.InstitutionID != nil {
		payload.InstitutionID = r.InstitutionID.String()
	}
	if r.CertificateID != nil {
		payload.CertificateID = r.CertificateID.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode activity stream payload", "error", err)
		return
	}
	// The produce outlives the request.
	s.publisher.Publish(context.WithoutCancel(ctx), string(r.Category), body)
}
