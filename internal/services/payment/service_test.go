package payment

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paylink/internal/apperr"
	"paylink/internal/crypto"
	"paylink/internal/domain/business"
	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"
	"paylink/internal/domain/order"
	"paylink/internal/provider"
	"paylink/internal/provider/tranzila"
	"paylink/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStripe stands in for a networked provider.
type fakeStripe struct {
	calls atomic.Int32
	block bool
	err   error
}

func (f *fakeStripe) Kind() integration.Kind  { return integration.KindStripe }
func (f *fakeStripe) SignatureHeader() string { return "stripe-signature" }

func (f *fakeStripe) CreatePaymentLink(ctx context.Context, creds provider.Credentials, req provider.LinkRequest) (*provider.LinkResponse, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.LinkResponse{PaymentURL: "https://checkout.stripe.test/" + req.OrderID}, nil
}

func (f *fakeStripe) ParseWebhook(body []byte) (event.Payment, error) {
	return event.Payment{}, provider.ErrMalformedPayload
}

type countingNotifier struct {
	mu    sync.Mutex
	sent  []string
	fails bool
}

func (n *countingNotifier) PaymentConfirmed(ctx context.Context, o *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, o.ID)
	if n.fails {
		return assert.AnError
	}
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type memDeliveries struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memDeliveries) Seen(ctx context.Context, kind, txID, outcome string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[kind+txID+outcome], nil
}

func (m *memDeliveries) Mark(ctx context.Context, kind, txID, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[kind+txID+outcome] = true
	return nil
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	vault    *crypto.Vault
	stripe   *fakeStripe
	notifier *countingNotifier
	owner    business.Caller
	bizA     *business.Business
	bizB     *business.Business
	secretA  string
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

	f := &fixture{
		store:    store,
		vault:    vault,
		stripe:   &fakeStripe{},
		notifier: &countingNotifier{},
		owner:    business.Caller{ID: "owner-a", Email: "a@example.com"},
		bizA:     a,
		bizB:     b,
	}
	f.secretA = f.addProvider(t, a.ID, integration.KindTranzila, map[string]string{"terminal": "shop1"}, true).WebhookSecret

	f.svc = NewService(Deps{
		Businesses:      store.Businesses(),
		Providers:       store.Providers(),
		Orders:          store.Orders(),
		Adapters:        provider.NewRegistry(tranzila.New(""), f.stripe),
		Vault:           vault,
		Notifier:        f.notifier,
		ProviderTimeout: 50 * time.Millisecond,
		BaseURL:         "https://pay.example/",
	})
	return f
}

func (f *fixture) addProvider(t *testing.T, businessID string, kind integration.Kind, creds map[string]string, primary bool) *integration.PaymentProvider {
	t.Helper()
	blob, err := f.vault.EncryptJSON(creds)
	require.NoError(t, err)
	secret, err := crypto.NewWebhookSecret()
	require.NoError(t, err)
	p, err := integration.New(businessID, kind, "", blob, secret, false, primary)
	require.NoError(t, err)
	require.NoError(t, f.store.Providers().Insert(context.Background(), p))
	return p
}

func linkReq(businessID, orderID string, amount int64) CreateLinkRequest {
	return CreateLinkRequest{
		BusinessID:    businessID,
		OrderID:       orderID,
		Amount:        decimal.NewFromInt(amount),
		CustomerPhone: "050-123-4567",
	}
}

func (f *fixture) pendingOrder(t *testing.T, id, businessID string) {
	t.Helper()
	o, err := order.New(id, businessID, "0501234567", decimal.NewFromInt(120), "ILS")
	require.NoError(t, err)
	require.NoError(t, o.MarkPending(integration.KindTranzila, time.Now()))
	f.store.PutOrder(o)
}

func (f *fixture) status(t *testing.T, id string) order.PaymentStatus {
	t.Helper()
	o, err := f.store.Orders().FindByID(context.Background(), id)
	require.NoError(t, err)
	return o.PaymentStatus
}

func TestCreatePaymentLinkThroughPrimary(t *testing.T) {
	f := setup(t)

	res, err := f.svc.CreatePaymentLink(context.Background(), f.owner, linkReq(f.bizA.ID, "O1", 120))
	require.NoError(t, err)
	assert.Equal(t, integration.KindTranzila, res.Provider)

	u, err := url.Parse(res.PaymentURL)
	require.NoError(t, err)
	assert.Equal(t, "/shop1/iframenew.php", u.Path)
	assert.Equal(t, "O1", u.Query().Get("order_id"))
	assert.Equal(t, "120.00", u.Query().Get("sum"))
	assert.Equal(t, "0501234567", u.Query().Get("phone"))
	assert.Equal(t, "https://pay.example/payments/webhook/tranzila", u.Query().Get("notify_url_address"))

	o, err := f.store.Orders().FindByID(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentPending, o.PaymentStatus)
	assert.Equal(t, f.bizA.ID, o.BusinessID)
	assert.Equal(t, "ILS", o.Currency)
}

func TestCreatePaymentLinkSelectsProvider(t *testing.T) {
	f := setup(t)
	p := f.addProvider(t, f.bizA.ID, integration.KindStripe, map[string]string{"secretKey": "sk_test"}, false)

	req := linkReq(f.bizA.ID, "O2", 50)
	req.ProviderID = p.ID
	res, err := f.svc.CreatePaymentLink(context.Background(), f.owner, req)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/O2", res.PaymentURL)
	assert.Equal(t, p.ID, res.ProviderID)

	other := f.addProvider(t, f.bizB.ID, integration.KindStripe, map[string]string{"secretKey": "sk_b"}, true)
	req.ProviderID = other.ID
	_, err = f.svc.CreatePaymentLink(context.Background(), f.owner, req)
	assert.Equal(t, 404, apperr.HTTPStatus(err))
}

func TestCreatePaymentLinkRejectsBeforeUpstream(t *testing.T) {
	f := setup(t)
	f.addProvider(t, f.bizA.ID, integration.KindStripe, map[string]string{"secretKey": "sk"}, true)
	f.store.PutOrder(&order.Order{ID: "PAID", BusinessID: f.bizA.ID, PaymentStatus: order.StatusPaid})
	f.store.PutOrder(&order.Order{ID: "FOREIGN", BusinessID: f.bizB.ID, PaymentStatus: order.StatusUnpaid})

	tests := []struct {
		name   string
		caller business.Caller
		req    CreateLinkRequest
		status int
		field  string
	}{
		{"zero amount", f.owner, linkReq(f.bizA.ID, "O1", 0), 400, "amount"},
		{"negative amount", f.owner, linkReq(f.bizA.ID, "O1", -5), 400, "amount"},
		{"missing order", f.owner, linkReq(f.bizA.ID, "", 10), 400, "orderId"},
		{"bad phone", f.owner, CreateLinkRequest{BusinessID: f.bizA.ID, OrderID: "O1", Amount: decimal.NewFromInt(1), CustomerPhone: "call me"}, 400, "customerPhone"},
		{"unknown business", f.owner, linkReq("nope", "O1", 10), 404, ""},
		{"not the owner", business.Caller{ID: "owner-b"}, linkReq(f.bizA.ID, "O1", 10), 403, ""},
		{"already paid", f.owner, linkReq(f.bizA.ID, "PAID", 10), 409, ""},
		{"order of another business", f.owner, linkReq(f.bizA.ID, "FOREIGN", 10), 404, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePaymentLink(context.Background(), tt.caller, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperr.HTTPStatus(err))
			if tt.field != "" {
				ae, _ := apperr.As(err)
				assert.Equal(t, tt.field, ae.Field)
			}
		})
	}
	assert.Zero(t, f.stripe.calls.Load())
	assert.Equal(t, order.StatusPaid, f.status(t, "PAID"))
}

func TestCreatePaymentLinkNoProvider(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreatePaymentLink(context.Background(), business.Caller{ID: "owner-b"}, linkReq(f.bizB.ID, "O1", 10))
	assert.Equal(t, 400, apperr.HTTPStatus(err))
}

func TestCreatePaymentLinkUpstreamFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		f := setup(t)
		f.addProvider(t, f.bizA.ID, integration.KindStripe, map[string]string{"secretKey": "sk"}, true)
		f.stripe.block = true

		start := time.Now()
		_, err := f.svc.CreatePaymentLink(context.Background(), f.owner, linkReq(f.bizA.ID, "O1", 10))
		assert.Equal(t, 504, apperr.HTTPStatus(err))
		assert.Less(t, time.Since(start), 2*time.Second)
		_, err = f.store.Orders().FindByID(context.Background(), "O1")
		assert.Error(t, err)
	})

	t.Run("provider rejects", func(t *testing.T) {
		f := setup(t)
		f.addProvider(t, f.bizA.ID, integration.KindStripe, map[string]string{"secretKey": "sk"}, true)
		f.stripe.err = &provider.ProviderError{Code: provider.ErrRejected, Message: "Invalid API Key provided"}

		_, err := f.svc.CreatePaymentLink(context.Background(), f.owner, linkReq(f.bizA.ID, "O1", 10))
		assert.Equal(t, 502, apperr.HTTPStatus(err))
		assert.Equal(t, "Invalid API Key provided", apperr.PublicMessage(err))
	})

	t.Run("undecryptable credentials", func(t *testing.T) {
		f := setup(t)
		p := f.addProvider(t, f.bizA.ID, integration.KindStripe, map[string]string{"secretKey": "sk"}, true)
		p.Credentials = "not-a-vault-blob"
		require.NoError(t, f.store.Providers().Update(context.Background(), p))

		_, err := f.svc.CreatePaymentLink(context.Background(), f.owner, linkReq(f.bizA.ID, "O1", 10))
		assert.Equal(t, 500, apperr.HTTPStatus(err))
		assert.Zero(t, f.stripe.calls.Load())
	})
}

func TestTranzilaWebhookMarksPaid(t *testing.T) {
	f := setup(t)
	f.pendingOrder(t, "O1", f.bizA.ID)

	body := []byte(`{"order_id":"O1","transaction_id":"T1","response":"000"}`)
	ack, err := f.svc.HandleInboundWebhook(context.Background(), "tranzila", body, provider.Sign(body, f.secretA))
	require.NoError(t, err)
	assert.Equal(t, &Ack{Success: true, Received: true}, ack)

	o, _ := f.store.Orders().FindByID(context.Background(), "O1")
	assert.Equal(t, order.StatusPaid, o.PaymentStatus)
	assert.Equal(t, "T1", o.ProviderTransactionID)
	assert.NotNil(t, o.PaidAt)
	assert.Equal(t, []string{"O1"}, f.notifier.sent)
}

func TestWebhookIdempotence(t *testing.T) {
	f := setup(t)
	f.pendingOrder(t, "O1", f.bizA.ID)
	body := []byte(`{"order_id":"O1","transaction_id":"T1","response":"000"}`)
	sig := provider.Sign(body, f.secretA)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.HandleInboundWebhook(context.Background(), "tranzila", body, sig)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, order.StatusPaid, f.status(t, "O1"))
	assert.Equal(t, 1, f.notifier.count())
}

func TestWebhookDeliveryLogShortCircuits(t *testing.T) {
	f := setup(t)
	deliveries := &memDeliveries{seen: map[string]bool{}}
	f.svc.d.Deliveries = deliveries
	f.pendingOrder(t, "O1", f.bizA.ID)

	body := []byte(`{"order_id":"O1","transaction_id":"T9","response":"051"}`)
	sig := provider.Sign(body, f.secretA)
	_, err := f.svc.HandleInboundWebhook(context.Background(), "tranzila", body, sig)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, f.status(t, "O1"))
	assert.True(t, deliveries.seen["tranzilaT9failed"])

	// a new link reopens the order; the replayed decline must not touch it
	o, _ := f.store.Orders().FindByID(context.Background(), "O1")
	_, err = f.store.Orders().SavePending(context.Background(), o)
	require.NoError(t, err)
	_, err = f.svc.HandleInboundWebhook(context.Background(), "tranzila", body, sig)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaymentPending, f.status(t, "O1"))
}

func TestWebhookRejections(t *testing.T) {
	f := setup(t)
	f.pendingOrder(t, "O1", f.bizA.ID)
	f.pendingOrder(t, "OB", f.bizB.ID)
	f.addProvider(t, f.bizB.ID, integration.KindTranzila, map[string]string{"terminal": "pizza"}, true)

	valid := []byte(`{"order_id":"O1","transaction_id":"T1","response":"000"}`)
	tampered := []byte(`{"order_id":"O1","transaction_id":"T2","response":"000"}`)
	foreign := []byte(`{"order_id":"OB","transaction_id":"T3","response":"000"}`)
	unknown := []byte(`{"order_id":"NOPE","transaction_id":"T4","response":"000"}`)

	tests := []struct {
		name   string
		kind   string
		body   []byte
		sig    string
		status int
		msg    string
	}{
		{"unknown provider", "unknownprovider", valid, provider.Sign(valid, f.secretA), 400, "Unknown payment provider"},
		{"malformed json", "tranzila", []byte(`{"order_id":`), "x", 400, "Invalid webhook payload"},
		{"missing transaction", "tranzila", []byte(`{"order_id":"O1","response":"000"}`), "x", 400, ""},
		{"bad signature", "tranzila", valid, strings.Repeat("0", 64), 401, "Invalid webhook signature"},
		{"body tampered after signing", "tranzila", tampered, provider.Sign(valid, f.secretA), 401, "Invalid webhook signature"},
		{"signed by another business", "tranzila", foreign, provider.Sign(foreign, f.secretA), 401, "Invalid webhook signature"},
		{"unknown order", "tranzila", unknown, provider.Sign(unknown, f.secretA), 401, "Invalid webhook signature"},
		{"payload of another provider", "stripe", valid, provider.Sign(valid, f.secretA), 400, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.HandleInboundWebhook(context.Background(), tt.kind, tt.body, tt.sig)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperr.HTTPStatus(err))
			if tt.msg != "" {
				assert.Equal(t, tt.msg, apperr.PublicMessage(err))
			}
		})
	}

	assert.Equal(t, order.StatusPaymentPending, f.status(t, "O1"))
	assert.Equal(t, order.StatusPaymentPending, f.status(t, "OB"))
	assert.Zero(t, f.notifier.count())
}

func TestWebhookNotifierFailureIsNotFatal(t *testing.T) {
	f := setup(t)
	f.notifier.fails = true
	f.pendingOrder(t, "O1", f.bizA.ID)

	body := []byte(`{"order_id":"O1","transaction_id":"T1","response":"000"}`)
	_, err := f.svc.HandleInboundWebhook(context.Background(), "tranzila", body, "sha256="+provider.Sign(body, f.secretA))
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, f.status(t, "O1"))
}
