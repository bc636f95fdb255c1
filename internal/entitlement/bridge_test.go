package entitlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankr-ai/assistant-client/internal/entitlement"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

type fakeSDK struct {
	activateErr   error
	activateCalls int

	profile    *entitlement.Profile
	profileErr error

	paywall    *entitlement.Offering
	paywallErr error

	products []entitlement.Product

	purchaseProfile *entitlement.Profile
	purchaseErr     error

	restoreErr error
}

func (f *fakeSDK) Activate(ctx context.Context, key string) error {
	f.activateCalls++
	return f.activateErr
}

func (f *fakeSDK) Profile(ctx context.Context) (*entitlement.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeSDK) Paywall(ctx context.Context, placementID string) (*entitlement.Offering, error) {
	return f.paywall, f.paywallErr
}

func (f *fakeSDK) Products(ctx context.Context, offering *entitlement.Offering) ([]entitlement.Product, error) {
	return f.products, nil
}

func (f *fakeSDK) Purchase(ctx context.Context, product entitlement.Product) (*entitlement.Profile, error) {
	return f.purchaseProfile, f.purchaseErr
}

func (f *fakeSDK) Restore(ctx context.Context) (*entitlement.Profile, error) {
	return nil, f.restoreErr
}

func newBridge(sdk entitlement.SDK, devMode bool) *entitlement.Bridge {
	return entitlement.New(sdk, entitlement.Options{
		SDKKey:      "sdk-key",
		AccessLevel: "premium",
		PlacementID: "default",
		DevMode:     devMode,
	}, logger.Nop())
}

func activeProfile() *entitlement.Profile {
	return &entitlement.Profile{
		CustomerID: "cust-1",
		AccessLevels: map[string]entitlement.AccessLevel{
			"premium": {ID: "premium", IsActive: true},
		},
	}
}

func TestUnsupportedBridge(t *testing.T) {
	b := entitlement.Unsupported(logger.Nop())
	ctx := context.Background()

	assert.False(t, b.Available())
	b.ActivateOnce(ctx)
	assert.False(t, b.QueryActive(ctx))
	assert.Empty(t, b.ListOfferings(ctx))
	assert.NoError(t, b.Restore(ctx))

	_, err := b.Purchase(ctx, entitlement.Product{ID: "p1"})
	assert.ErrorIs(t, err, entitlement.ErrUnsupported)
}

func TestActivateOnceIsIdempotent(t *testing.T) {
	sdk := &fakeSDK{}
	b := newBridge(sdk, false)
	ctx := context.Background()

	b.ActivateOnce(ctx)
	b.ActivateOnce(ctx)
	assert.Equal(t, 1, sdk.activateCalls)
}

func TestActivateFailureRetriesNextCall(t *testing.T) {
	sdk := &fakeSDK{activateErr: errors.New("network down")}
	b := newBridge(sdk, false)
	ctx := context.Background()

	b.ActivateOnce(ctx)
	sdk.activateErr = nil
	b.ActivateOnce(ctx)
	b.ActivateOnce(ctx)
	assert.Equal(t, 2, sdk.activateCalls)
}

func TestQueryActive(t *testing.T) {
	tests := []struct {
		name    string
		profile *entitlement.Profile
		err     error
		want    bool
	}{
		{"active level", activeProfile(), nil, true},
		{"inactive level", &entitlement.Profile{
			AccessLevels: map[string]entitlement.AccessLevel{
				"premium": {ID: "premium", IsActive: false},
			},
		}, nil, false},
		{"other level only", &entitlement.Profile{
			AccessLevels: map[string]entitlement.AccessLevel{
				"basic": {ID: "basic", IsActive: true},
			},
		}, nil, false},
		{"nil profile", nil, nil, false},
		{"fetch error", nil, errors.New("timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBridge(&fakeSDK{profile: tt.profile, profileErr: tt.err}, false)
			assert.Equal(t, tt.want, b.QueryActive(context.Background()))
		})
	}
}

func TestListOfferings(t *testing.T) {
	sdk := &fakeSDK{paywall: &entitlement.Offering{ID: "off-1", PlacementID: "default"}}
	b := newBridge(sdk, false)

	offerings := b.ListOfferings(context.Background())
	require.Len(t, offerings, 1)
	assert.Equal(t, "off-1", offerings[0].ID)

	sdk.paywall, sdk.paywallErr = nil, errors.New("unavailable")
	assert.Empty(t, b.ListOfferings(context.Background()))
}

func TestPurchaseSuccess(t *testing.T) {
	b := newBridge(&fakeSDK{purchaseProfile: activeProfile()}, false)

	profile, err := b.Purchase(context.Background(), entitlement.Product{ID: "monthly"})
	require.NoError(t, err)
	assert.True(t, profile.AccessLevels["premium"].IsActive)
}

func TestPurchaseCancelledViaError(t *testing.T) {
	b := newBridge(&fakeSDK{purchaseErr: entitlement.ErrPurchaseCancelled}, false)

	_, err := b.Purchase(context.Background(), entitlement.Product{ID: "monthly"})
	assert.ErrorIs(t, err, entitlement.ErrPurchaseCancelled)
}

func TestPurchaseCancelledViaProfileFlag(t *testing.T) {
	b := newBridge(&fakeSDK{purchaseProfile: &entitlement.Profile{Cancelled: true}}, false)

	_, err := b.Purchase(context.Background(), entitlement.Product{ID: "monthly"})
	assert.ErrorIs(t, err, entitlement.ErrPurchaseCancelled)
}

func TestPurchaseUnverifiableProfile(t *testing.T) {
	b := newBridge(&fakeSDK{purchaseProfile: &entitlement.Profile{}}, false)

	_, err := b.Purchase(context.Background(), entitlement.Product{ID: "monthly"})
	assert.ErrorIs(t, err, entitlement.ErrVerificationFailed)
}

func TestPurchaseDevModeToleratesUnverifiable(t *testing.T) {
	b := newBridge(&fakeSDK{purchaseProfile: nil}, true)

	profile, err := b.Purchase(context.Background(), entitlement.Product{ID: "monthly"})
	require.NoError(t, err)
	require.NotNil(t, profile)
}

func TestRestorePropagatesErrors(t *testing.T) {
	b := newBridge(&fakeSDK{restoreErr: errors.New("store unreachable")}, false)
	assert.Error(t, b.Restore(context.Background()))
}
