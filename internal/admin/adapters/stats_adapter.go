// Package adapters turns the per-domain count queries into the plain
// string-keyed tallies the admin dashboard reports.
package adapters

import (
	"context"

	certmodels "certhub/internal/certificate/models"
	instmodels "certhub/internal/institution/models"
	id "certhub/pkg/domain"
)

type UserCounter interface {
	CountByRole(ctx context.Context) (map[id.Role]int, error)
}

type InstitutionCounter interface {
	CountByStatus(ctx context.Context) (map[instmodels.Status]int, error)
}

type CertificateCounter interface {
	CountByStatus(ctx context.Context) (map[certmodels.Status]int, error)
}

// UserTally adapts a user store to the admin Tally interface.
type UserTally struct{ store UserCounter }

func NewUserTally(store UserCounter) *UserTally { return &UserTally{store: store} }

func (a *UserTally) Tally(ctx context.Context) (map[string]int, error) {
	counts, err := a.store.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	out := zeroed(id.RoleAdmin, id.RoleInstitution, id.RoleUser)
	for k, v := range counts {
		out[string(k)] = v
	}
	return out, nil
}

type InstitutionTally struct{ store InstitutionCounter }

func NewInstitutionTally(store InstitutionCounter) *InstitutionTally {
	return &InstitutionTally{store: store}
}

func (a *InstitutionTally) Tally(ctx context.Context) (map[string]int, error) {
	counts, err := a.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := zeroed(instmodels.StatusPending, instmodels.StatusActive, instmodels.StatusSuspended)
	for k, v := range counts {
		out[string(k)] = v
	}
	return out, nil
}

type CertificateTally struct{ store CertificateCounter }

func NewCertificateTally(store CertificateCounter) *CertificateTally {
	return &CertificateTally{store: store}
}

func (a *CertificateTally) Tally(ctx context.Context) (map[string]int, error) {
	counts, err := a.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := zeroed(certmodels.StatusActive, certmodels.StatusRevoked, certmodels.StatusExpired)
	for k, v := range counts {
		out[string(k)] = v
	}
	return out, nil
}

// zeroed seeds every known key so the dashboard always shows all buckets.
func zeroed[K ~string](keys ...K) map[string]int {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[string(k)] = 0
	}
	return out
}
