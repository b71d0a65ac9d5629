// Package integration holds the PaymentProvider entity: one configured
// payment provider instance owned by one business.
package integration

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a supported payment provider.
type Kind string

const (
	KindStripe   Kind = "stripe"
	KindPayPal   Kind = "paypal"
	KindTranzila Kind = "tranzila"
	KindMeshulam Kind = "meshulam"
	KindCardcom  Kind = "cardcom"
)

var kinds = []Kind{KindStripe, KindPayPal, KindTranzila, KindMeshulam, KindCardcom}

var displayNames = map[Kind]string{
	KindStripe:   "Stripe",
	KindPayPal:   "PayPal",
	KindTranzila: "Tranzila",
	KindMeshulam: "Meshulam",
	KindCardcom:  "Cardcom",
}

// Kinds returns the fixed allow-list.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind accepts only allow-listed kinds, case-sensitively.
func ParseKind(s string) (Kind, bool) {
	for _, k := range kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

func (k Kind) DisplayName() string { return displayNames[k] }

// PaymentProvider is the stored record. Credentials holds a vault blob and
// is never serialized; neither is WebhookSecret.
type PaymentProvider struct {
	ID            string
	BusinessID    string
	Kind          Kind
	Name          string
	Credentials   string `json:"-"`
	WebhookSecret string `json:"-"`
	TestMode      bool
	IsPrimary     bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Summary is the only shape handed to clients.
type Summary struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"businessId"`
	Provider     Kind      `json:"provider"`
	ProviderName string    `json:"providerName"`
	TestMode     bool      `json:"testMode"`
	IsPrimary    bool      `json:"isPrimary"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// New builds an active provider record. credentialsBlob must already be
// encrypted and webhookSecret freshly generated.
func New(businessID string, kind Kind, name, credentialsBlob, webhookSecret string, testMode, primary bool) (*PaymentProvider, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, fmt.Errorf("business id is required")
	}
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
	if credentialsBlob == "" {
		return nil, fmt.Errorf("credentials are required")
	}
	if len(webhookSecret) < 32 {
		return nil, fmt.Errorf("webhook secret is too short")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = kind.DisplayName()
	}
	now := time.Now().UTC()
	return &PaymentProvider{
		ID:            uuid.NewString(),
		BusinessID:    businessID,
		Kind:          kind,
		Name:          name,
		Credentials:   credentialsBlob,
		WebhookSecret: webhookSecret,
		TestMode:      testMode,
		IsPrimary:     primary,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (p *PaymentProvider) Summary() Summary {
	return Summary{
		ID:           p.ID,
		BusinessID:   p.BusinessID,
		Provider:     p.Kind,
		ProviderName: p.Name,
		TestMode:     p.TestMode,
		IsPrimary:    p.IsPrimary,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// Patch is a partial update. Nil fields are left untouched; kind and
// webhook secret cannot be patched.
type Patch struct {
	Name        *string
	Credentials *string // encrypted blob
	TestMode    *bool
	IsActive    *bool
	IsPrimary   *bool
}

func (p *PaymentProvider) Apply(patch Patch, now time.Time) {
	if patch.Name != nil {
		if n := strings.TrimSpace(*patch.Name); n != "" {
			p.Name = n
		}
	}
	if patch.Credentials != nil && *patch.Credentials != "" {
		p.Credentials = *patch.Credentials
	}
	if patch.TestMode != nil {
		p.TestMode = *patch.TestMode
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.IsPrimary != nil {
		p.IsPrimary = *patch.IsPrimary
	}
	p.UpdatedAt = now
}

// SortForListing orders primary first, then by creation time.
func SortForListing(ps []*PaymentProvider) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].IsPrimary != ps[j].IsPrimary {
			return ps[i].IsPrimary
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

// Default picks the provider used when the caller did not name one:
// the active primary, else the earliest active provider.
func Default(ps []*PaymentProvider) *PaymentProvider {
	var first *PaymentProvider
	for _, p := range ps {
		if !p.IsActive {
			continue
		}
		if p.IsPrimary {
			return p
		}
		if first == nil || p.CreatedAt.Before(first.CreatedAt) {
			first = p
		}
	}
	return first
}
