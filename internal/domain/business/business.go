package business

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Business is the tenant root; it owns its payment providers.
type Business struct {
	ID               string
	OwnerID          string
	Name             string
	PaymentProviders []string // provider ids, insertion order
	CreatedAt        time.Time
}

func New(ownerID, name string) (*Business, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("business name is required")
	}
	return &Business{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (b *Business) IsOwnedBy(userID string) bool {
	return userID != "" && b.OwnerID == userID
}

// AddProvider registers a provider id once.
func (b *Business) AddProvider(id string) {
	for _, p := range b.PaymentProviders {
		if p == id {
			return
		}
	}
	b.PaymentProviders = append(b.PaymentProviders, id)
}

func (b *Business) RemoveProvider(id string) {
	out := b.PaymentProviders[:0]
	for _, p := range b.PaymentProviders {
		if p != id {
			out = append(out, p)
		}
	}
	b.PaymentProviders = out
}

// Caller is the authenticated user acting on a business.
type Caller struct {
	ID    string
	Email string
}

// CanManage reports whether c may act on b: the owner always may, other
// callers only when isAdmin accepts their email.
func (b *Business) CanManage(c Caller, isAdmin func(email string) bool) bool {
	if b.IsOwnedBy(c.ID) {
		return true
	}
	return isAdmin != nil && c.Email != "" && isAdmin(c.Email)
}
