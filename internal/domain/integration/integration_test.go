package integration

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = strings.Repeat("a", 64)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, ok := ParseKind(string(k))
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
	for _, s := range []string{"", "Stripe", "bitpay", "unknownprovider"} {
		_, ok := ParseKind(s)
		assert.False(t, ok, s)
	}
}

func TestNewDefaultsNameAndValidates(t *testing.T) {
	p, err := New("B1", KindMeshulam, "  ", "blob", secret, true, false)
	require.NoError(t, err)
	assert.Equal(t, "Meshulam", p.Name)
	assert.True(t, p.IsActive)
	assert.NotEmpty(t, p.ID)

	_, err = New("B1", Kind("bitpay"), "", "blob", secret, false, false)
	assert.Error(t, err)
	_, err = New("B1", KindStripe, "", "", secret, false, false)
	assert.Error(t, err)
	_, err = New("B1", KindStripe, "", "blob", "short", false, false)
	assert.Error(t, err)
}

func TestSerializationNeverLeaksSecrets(t *testing.T) {
	p, err := New("B1", KindStripe, "Main", "ENCRYPTED-BLOB", secret, false, true)
	require.NoError(t, err)

	for _, v := range []any{p, p.Summary()} {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "ENCRYPTED-BLOB")
		assert.NotContains(t, string(b), secret)
		assert.NotContains(t, string(b), "credentials")
		assert.NotContains(t, string(b), "webhookSecret")
	}
}

func TestSortForListingAndDefault(t *testing.T) {
	base := time.Now()
	a := &PaymentProvider{ID: "a", CreatedAt: base, IsActive: true}
	b := &PaymentProvider{ID: "b", CreatedAt: base.Add(time.Second), IsActive: true, IsPrimary: true}
	c := &PaymentProvider{ID: "c", CreatedAt: base.Add(2 * time.Second), IsActive: true}

	ps := []*PaymentProvider{c, a, b}
	SortForListing(ps)
	assert.Equal(t, []string{"b", "a", "c"}, []string{ps[0].ID, ps[1].ID, ps[2].ID})

	assert.Equal(t, "b", Default(ps).ID)
	b.IsActive = false
	assert.Equal(t, "a", Default(ps).ID)
	a.IsActive, c.IsActive = false, false
	assert.Nil(t, Default(ps))
}

func TestApplyPatch(t *testing.T) {
	p, _ := New("B1", KindPayPal, "", "blob", secret, false, false)
	name, primary, active := "PayPal IL", true, false
	p.Apply(Patch{Name: &name, IsPrimary: &primary, IsActive: &active}, time.Now())

	assert.Equal(t, "PayPal IL", p.Name)
	assert.True(t, p.IsPrimary)
	assert.False(t, p.IsActive)
	assert.Equal(t, "blob", p.Credentials)
	assert.Equal(t, KindPayPal, p.Kind)
}
