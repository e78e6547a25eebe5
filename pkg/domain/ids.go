// Package domain holds primitives shared across services: typed identifiers
// that cannot be mixed up at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "certhub/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	InstitutionID uuid.UUID
	CertificateID uuid.UUID
	ActivityLogID uuid.UUID
	TicketID      uuid.UUID
	MessageID     uuid.UUID
	AttachmentID  uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id InstitutionID) String() string { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }
func (id ActivityLogID) String() string { return uuid.UUID(id).String() }
func (id TicketID) String() string      { return uuid.UUID(id).String() }
func (id MessageID) String() string     { return uuid.UUID(id).String() }
func (id AttachmentID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id InstitutionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActivityLogID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TicketID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AttachmentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the parsing invariant shared by every ID type:
// non-empty, well-formed, and not the nil UUID.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseInstitutionID(s string) (InstitutionID, error) {
	u, err := parseUUID(s, "institution id")
	return InstitutionID(u), err
}

func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID(s, "certificate id")
	return CertificateID(u), err
}

func ParseActivityLogID(s string) (ActivityLogID, error) {
	u, err := parseUUID(s, "activity log id")
	return ActivityLogID(u), err
}

func ParseTicketID(s string) (TicketID, error) {
	u, err := parseUUID(s, "ticket id")
	return TicketID(u), err
}

func ParseMessageID(s string) (MessageID, error) {
	u, err := parseUUID(s, "message id")
	return MessageID(u), err
}

func ParseAttachmentID(s string) (AttachmentID, error) {
	u, err := parseUUID(s, "attachment id")
	return AttachmentID(u), err
}

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewInstitutionID() InstitutionID { return InstitutionID(uuid.New()) }
func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }
func NewActivityLogID() ActivityLogID { return ActivityLogID(uuid.New()) }
func NewTicketID() TicketID           { return TicketID(uuid.New()) }
func NewMessageID() MessageID         { return MessageID(uuid.New()) }
func NewAttachmentID() AttachmentID   { return AttachmentID(uuid.New()) }
