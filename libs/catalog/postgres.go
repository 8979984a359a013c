package catalog

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/salonpos/libs/db"
)

type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Resource(ctx context.Context, id string) (Resource, error) {
	var res Resource
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, name, is_active, commission_rate, COALESCE(ledger_account_id, '')
		FROM resources
		WHERE id = $1
	`, id).Scan(&res.ID, &res.Name, &res.Active, &res.CommissionRate, &res.LedgerAccountID)
	if err != nil {
		if db.IsNotFound(err) {
			return Resource{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
		}
		return Resource{}, err
	}
	return res, nil
}

func (p *Postgres) Service(ctx context.Context, id string) (Service, error) {
	var svc Service
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, price, commission_rate
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.Price, &svc.CommissionRate)
	if err != nil {
		if db.IsNotFound(err) {
			return Service{}, fmt.Errorf("service %s: %w", id, ErrNotFound)
		}
		return Service{}, err
	}
	return svc, nil
}
