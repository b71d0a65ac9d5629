// Package memory implements the repositories in process memory. It backs
// the tests and STORE_DRIVER=memory for local development.
package memory

import (
	"context"
	"sync"
	"time"

	"paylink/internal/domain/business"
	"paylink/internal/domain/integration"
	"paylink/internal/domain/order"
	"paylink/internal/store/repositories"
)

// Store holds every collection under one lock, so multi-record updates
// (primary flag flips, provider registration on the business) are atomic.
type Store struct {
	mu         sync.RWMutex
	businesses map[string]*business.Business
	providers  map[string]*integration.PaymentProvider
	orders     map[string]*order.Order
	now        func() time.Time
}

func New() *Store {
	return &Store{
		businesses: make(map[string]*business.Business),
		providers:  make(map[string]*integration.PaymentProvider),
		orders:     make(map[string]*order.Order),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Businesses() repositories.BusinessRepository { return businessRepo{s} }
func (s *Store) Providers() repositories.ProviderRepository  { return providerRepo{s} }
func (s *Store) Orders() repositories.OrderRepository        { return orderRepo{s} }

// --- businesses ---

type businessRepo struct{ s *Store }

func (r businessRepo) Create(ctx context.Context, b *business.Business) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := cloneBusiness(b)
	r.s.businesses[b.ID] = c
	return nil
}

func (r businessRepo) FindByID(ctx context.Context, id string) (*business.Business, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.businesses[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneBusiness(b), nil
}

func cloneBusiness(b *business.Business) *business.Business {
	c := *b
	c.PaymentProviders = append([]string(nil), b.PaymentProviders...)
	return &c
}

// --- providers ---

type providerRepo struct{ s *Store }

func (r providerRepo) Insert(ctx context.Context, p *integration.PaymentProvider) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.businesses[p.BusinessID]
	if !ok {
		return repositories.ErrNotFound
	}
	if p.IsPrimary {
		r.s.unsetPrimary(p.BusinessID, p.ID)
	}
	c := *p
	r.s.providers[p.ID] = &c
	b.AddProvider(p.ID)
	return nil
}

func (r providerRepo) Update(ctx context.Context, p *integration.PaymentProvider) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.providers[p.ID]
	if !ok || cur.BusinessID != p.BusinessID {
		return repositories.ErrNotFound
	}
	if p.IsPrimary {
		r.s.unsetPrimary(p.BusinessID, p.ID)
	}
	c := *p
	r.s.providers[p.ID] = &c
	return nil
}

func (r providerRepo) FindByID(ctx context.Context, businessID, id string) (*integration.PaymentProvider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.providers[id]
	if !ok || p.BusinessID != businessID {
		return nil, repositories.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r providerRepo) ListByBusiness(ctx context.Context, businessID string) ([]*integration.PaymentProvider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*integration.PaymentProvider{}
	for _, p := range r.s.providers {
		if p.BusinessID == businessID {
			c := *p
			out = append(out, &c)
		}
	}
	integration.SortForListing(out)
	return out, nil
}

func (r providerRepo) FindActiveByKind(ctx context.Context, businessID string, kind integration.Kind) (*integration.PaymentProvider, error) {
	ps, _ := r.ListByBusiness(ctx, businessID)
	for _, p := range ps {
		if p.Kind == kind && p.IsActive {
			return p, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r providerRepo) Delete(ctx context.Context, businessID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.providers[id]
	if !ok || p.BusinessID != businessID {
		return repositories.ErrNotFound
	}
	delete(r.s.providers, id)
	if b, ok := r.s.businesses[businessID]; ok {
		b.RemoveProvider(id)
	}
	return nil
}

// unsetPrimary must be called with mu held.
func (s *Store) unsetPrimary(businessID, exceptID string) {
	now := s.now()
	for _, p := range s.providers {
		if p.BusinessID == businessID && p.ID != exceptID && p.IsPrimary {
			p.IsPrimary = false
			p.UpdatedAt = now
		}
	}
}

// --- orders ---

type orderRepo struct{ s *Store }

func (r orderRepo) FindByID(ctx context.Context, id string) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (r orderRepo) SavePending(ctx context.Context, o *order.Order) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.orders[o.ID]
	if !ok {
		c := *o
		if err := c.MarkPending(o.ProviderKind, r.s.now()); err != nil {
			return false, err
		}
		r.s.orders[o.ID] = &c
		return true, nil
	}
	if cur.IsPaid() {
		return false, nil
	}
	cur.Amount = o.Amount
	cur.Currency = o.Currency
	if o.CustomerPhone != "" {
		cur.CustomerPhone = o.CustomerPhone
	}
	if err := cur.MarkPending(o.ProviderKind, r.s.now()); err != nil {
		return false, err
	}
	return true, nil
}

func (r orderRepo) MarkPaid(ctx context.Context, orderID string, kind integration.Kind, txID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	return o.MarkPaid(kind, txID, r.s.now()), nil
}

func (r orderRepo) MarkFailed(ctx context.Context, orderID, txID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	return o.MarkFailed(txID, r.s.now()), nil
}

// PutOrder seeds an order as the ordering flow would create it.
func (s *Store) PutOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	s.orders[o.ID] = &c
}
