// Package catalog resolves resources (service providers) and the services they render.
// Both booking-service and ledger-service read it; neither writes it.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog: not found")

type Resource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	// CommissionRate is a percentage (12.5 means 12.5%). Invalid when unset.
	CommissionRate  decimal.NullDecimal `json:"commission_rate"`
	LedgerAccountID string              `json:"ledger_account_id,omitempty"`
}

type Service struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	DurationMinutes int                 `json:"duration_minutes"`
	Price           decimal.Decimal     `json:"price"`
	CommissionRate  decimal.NullDecimal `json:"commission_rate"`
}

// Directory is the read side consumed by the scheduling engine and the projector.
type Directory interface {
	Resource(ctx context.Context, id string) (Resource, error)
	Service(ctx context.Context, id string) (Service, error)
}

// EffectiveCommissionRate prefers the service's own rate and falls back to the
// resource default. ok is false when neither is configured.
func EffectiveCommissionRate(res Resource, svc Service) (decimal.Decimal, bool) {
	if svc.CommissionRate.Valid {
		return svc.CommissionRate.Decimal, true
	}
	if res.CommissionRate.Valid {
		return res.CommissionRate.Decimal, true
	}
	return decimal.Zero, false
}
