package providers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"paylink/internal/apperr"
	"paylink/internal/config"
	"paylink/internal/crypto"
	"paylink/internal/domain/business"
	"paylink/internal/domain/integration"
	"paylink/internal/store/memory"
	"paylink/internal/store/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc   *Service
	store *memory.Store
	vault *crypto.Vault
	owner business.Caller
	bizA  *business.Business
	bizB  *business.Business
}

func setup(t *testing.T) *fixture {
	t.Helper()
	vault, err := crypto.NewVault([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	store := memory.New()
	ctx := context.Background()
	a, _ := business.New("owner-a", "Shawarma A")
	b, _ := business.New("owner-b", "Pizza B")
	require.NoError(t, store.Businesses().Create(ctx, a))
	require.NoError(t, store.Businesses().Create(ctx, b))

	admins := config.NewAdminList([]string{"ops@paylink.example"})
	return &fixture{
		svc:   NewService(store.Businesses(), store.Providers(), vault, admins),
		store: store,
		vault: vault,
		owner: business.Caller{ID: "owner-a", Email: "a@example.com"},
		bizA:  a,
		bizB:  b,
	}
}

func addReq(businessID, kind string, primary bool) AddRequest {
	return AddRequest{
		BusinessID:  businessID,
		Provider:    kind,
		Credentials: json.RawMessage(`{"terminal":"shop1"}`),
		IsPrimary:   primary,
	}
}

func countPrimary(t *testing.T, f *fixture, businessID string) int {
	ps, err := f.store.Providers().ListByBusiness(context.Background(), businessID)
	require.NoError(t, err)
	n := 0
	for _, p := range ps {
		if p.IsPrimary {
			n++
		}
	}
	return n
}

func TestAddEncryptsAndRegisters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sum, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "tranzila", false))
	require.NoError(t, err)
	assert.Equal(t, "Tranzila", sum.ProviderName)

	stored, err := f.store.Providers().FindByID(ctx, f.bizA.ID, sum.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Credentials, "shop1")
	assert.Len(t, stored.WebhookSecret, 64)

	var creds map[string]string
	require.NoError(t, f.vault.DecryptJSON(stored.Credentials, &creds))
	assert.Equal(t, "shop1", creds["terminal"])

	b, _ := f.store.Businesses().FindByID(ctx, f.bizA.ID)
	assert.Equal(t, []string{sum.ID}, b.PaymentProviders)
}

func TestAddValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    AddRequest
		status int
		field  string
	}{
		{"unknown kind", addReq(f.bizA.ID, "bitpay", false), 400, "provider"},
		{"array credentials", AddRequest{BusinessID: f.bizA.ID, Provider: "stripe", Credentials: json.RawMessage(`["sk"]`)}, 400, "credentials"},
		{"null credentials", AddRequest{BusinessID: f.bizA.ID, Provider: "stripe", Credentials: json.RawMessage(`null`)}, 400, "credentials"},
		{"string credentials", AddRequest{BusinessID: f.bizA.ID, Provider: "stripe", Credentials: json.RawMessage(`"sk_live"`)}, 400, "credentials"},
		{"missing business id", addReq("", "stripe", false), 400, "businessId"},
		{"unknown business", addReq("nope", "stripe", false), 404, ""},
		{"foreign business", addReq(f.bizB.ID, "stripe", false), 403, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Add(ctx, f.owner, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperr.HTTPStatus(err))
			if tt.field != "" {
				ae, ok := apperr.As(err)
				require.True(t, ok)
				assert.Equal(t, tt.field, ae.Field)
			}
		})
	}
}

func TestPrimaryExclusivity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "stripe", true))
	require.NoError(t, err)
	second, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "paypal", true))
	require.NoError(t, err)

	list, err := f.svc.List(ctx, f.owner, f.bizA.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[0].IsPrimary)
	assert.Equal(t, first.ID, list[1].ID)
	assert.False(t, list[1].IsPrimary)

	yes := true
	_, err = f.svc.Update(ctx, f.owner, f.bizA.ID, first.ID, UpdateRequest{IsPrimary: &yes})
	require.NoError(t, err)
	assert.Equal(t, 1, countPrimary(t, f, f.bizA.ID))

	no := false
	_, err = f.svc.Update(ctx, f.owner, f.bizA.ID, first.ID, UpdateRequest{IsPrimary: &no})
	require.NoError(t, err)
	assert.Equal(t, 0, countPrimary(t, f, f.bizA.ID))
}

func TestPrimaryExclusivityUnderConcurrency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "cardcom", true))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, countPrimary(t, f, f.bizA.ID))
}

func TestCrossTenantIsolation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "meshulam", true))
	require.NoError(t, err)

	ownerB := business.Caller{ID: "owner-b"}
	name := "hijacked"
	// neither its own business id nor the real owner's reveals anything
	for _, businessID := range []string{f.bizB.ID, f.bizA.ID, "does-not-exist"} {
		_, err = f.svc.Update(ctx, ownerB, businessID, p.ID, UpdateRequest{ProviderName: &name})
		assert.Equal(t, 404, apperr.HTTPStatus(err), businessID)
		assert.Equal(t, "Payment provider not found", apperr.PublicMessage(err))
		err = f.svc.Remove(ctx, ownerB, businessID, p.ID)
		assert.Equal(t, 404, apperr.HTTPStatus(err), businessID)
		assert.Equal(t, "Payment provider not found", apperr.PublicMessage(err))
		_, err = f.svc.RotateWebhookSecret(ctx, ownerB, businessID, p.ID)
		assert.Equal(t, 404, apperr.HTTPStatus(err), businessID)
		assert.Equal(t, "Payment provider not found", apperr.PublicMessage(err))
	}

	stored, err := f.store.Providers().FindByID(ctx, f.bizA.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Meshulam", stored.Name)
	assert.True(t, stored.IsPrimary)
}

func TestAdminMayManageAnyBusiness(t *testing.T) {
	f := setup(t)
	admin := business.Caller{ID: "staff-1", Email: "OPS@paylink.example"}
	_, err := f.svc.Add(context.Background(), admin, addReq(f.bizB.ID, "stripe", false))
	assert.NoError(t, err)
}

func TestUpdateCredentialsAndRemove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "tranzila", false))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.owner, f.bizA.ID, p.ID, UpdateRequest{Credentials: json.RawMessage(`[]`)})
	assert.Equal(t, 400, apperr.HTTPStatus(err))

	_, err = f.svc.Update(ctx, f.owner, f.bizA.ID, p.ID, UpdateRequest{Credentials: json.RawMessage(`{"terminal":"shop2"}`)})
	require.NoError(t, err)
	stored, _ := f.store.Providers().FindByID(ctx, f.bizA.ID, p.ID)
	var creds map[string]string
	require.NoError(t, f.vault.DecryptJSON(stored.Credentials, &creds))
	assert.Equal(t, "shop2", creds["terminal"])

	require.NoError(t, f.svc.Remove(ctx, f.owner, f.bizA.ID, p.ID))
	b, _ := f.store.Businesses().FindByID(ctx, f.bizA.ID)
	assert.Empty(t, b.PaymentProviders)
	assert.Equal(t, 404, apperr.HTTPStatus(f.svc.Remove(ctx, f.owner, f.bizA.ID, p.ID)))
}

func TestRotateWebhookSecret(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "cardcom", false))
	require.NoError(t, err)
	before, _ := f.store.Providers().FindByID(ctx, f.bizA.ID, p.ID)

	secret, err := f.svc.RotateWebhookSecret(ctx, f.owner, f.bizA.ID, p.ID)
	require.NoError(t, err)
	assert.Len(t, secret, 64)
	assert.NotEqual(t, before.WebhookSecret, secret)

	after, _ := f.store.Providers().FindByID(ctx, f.bizA.ID, p.ID)
	assert.Equal(t, secret, after.WebhookSecret)
}

// vanishingProviders deletes the provider right before it is written back,
// as a concurrent remove would.
type vanishingProviders struct {
	repositories.ProviderRepository
}

func (v vanishingProviders) Update(ctx context.Context, p *integration.PaymentProvider) error {
	if err := v.ProviderRepository.Delete(ctx, p.BusinessID, p.ID); err != nil {
		return err
	}
	return v.ProviderRepository.Update(ctx, p)
}

func TestRotateWebhookSecretRemovedConcurrently(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.Add(ctx, f.owner, addReq(f.bizA.ID, "cardcom", false))
	require.NoError(t, err)

	svc := NewService(f.store.Businesses(), vanishingProviders{f.store.Providers()}, f.vault, nil)
	_, err = svc.RotateWebhookSecret(ctx, f.owner, f.bizA.ID, p.ID)
	require.Error(t, err)
	assert.Equal(t, 404, apperr.HTTPStatus(err))
}
