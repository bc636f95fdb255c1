// Package entitlement wraps the platform in-app-purchase subsystem.
//
// The raw SDK is only reachable on one platform family; everywhere else
// the bridge degrades to "not subscribed" instead of failing. The rest of
// the system never talks to the SDK directly.
package entitlement

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/bankr-ai/assistant-client/pkg/logger"
	"github.com/bankr-ai/assistant-client/pkg/metrics"
)

var (
	// ErrPurchaseCancelled signals the user backed out of the purchase
	// flow. It is a normal early exit, not a failure: callers must treat
	// it as a no-op and never log it as an error.
	ErrPurchaseCancelled = errors.New("purchase cancelled by user")

	// ErrVerificationFailed signals the purchase API returned a profile
	// that cannot be confirmed as entitled. Only an explicit dev-mode
	// fallback may downgrade this to success.
	ErrVerificationFailed = errors.New("purchase verification failed")

	// ErrUnsupported signals the platform has no IAP subsystem.
	ErrUnsupported = errors.New("in-app purchases unsupported on this platform")
)

// Profile is the platform SDK's view of the signed-in identity.
type Profile struct {
	CustomerID   string
	AccessLevels map[string]AccessLevel
	// Cancelled is set by SDKs that report user cancellation through the
	// purchase result instead of an error.
	Cancelled bool
}

// AccessLevel describes one entitlement tier in a Profile.
type AccessLevel struct {
	ID       string
	IsActive bool
}

// Offering is a purchasable paywall fetched for a placement.
type Offering struct {
	ID          string
	PlacementID string
	Name        string
}

// Product is a purchasable item within an offering.
type Product struct {
	ID       string
	Title    string
	Price    string
	Currency string
}

// SDK models the raw platform IAP SDK surface the bridge depends on.
type SDK interface {
	Activate(ctx context.Context, key string) error
	Profile(ctx context.Context) (*Profile, error)
	Paywall(ctx context.Context, placementID string) (*Offering, error)
	Products(ctx context.Context, offering *Offering) ([]Product, error)
	Purchase(ctx context.Context, product Product) (*Profile, error)
	Restore(ctx context.Context) (*Profile, error)
}

// Bridge is the platform entitlement bridge. Activation happens exactly
// once, explicitly, during process startup; activation failures are
// logged and swallowed so the rest of the system degrades to
// "not subscribed" rather than crashing.
type Bridge struct {
	sdk         SDK
	sdkKey      string
	accessLevel string
	placementID string
	devMode     bool
	logger      *logger.Logger

	mu        sync.Mutex
	activated bool
}

// Options configures a Bridge.
type Options struct {
	SDKKey      string
	AccessLevel string
	PlacementID string
	// DevMode permits the sandbox fallback that treats an unverifiable
	// purchase profile as success. Never enable in production builds.
	DevMode bool
}

// New creates a bridge over the given SDK. A nil SDK yields the
// unsupported-platform bridge.
func New(sdk SDK, opts Options, log *logger.Logger) *Bridge {
	return &Bridge{
		sdk:         sdk,
		sdkKey:      opts.SDKKey,
		accessLevel: opts.AccessLevel,
		placementID: opts.PlacementID,
		devMode:     opts.DevMode,
		logger:      log.WithComponent("entitlement"),
	}
}

// Unsupported returns a bridge for platforms without an IAP subsystem.
func Unsupported(log *logger.Logger) *Bridge {
	return New(nil, Options{}, log)
}

// Available reports whether the platform IAP subsystem exists here.
func (b *Bridge) Available() bool {
	return b.sdk != nil
}

// ActivateOnce activates the SDK if it has not been activated yet.
// Idempotent; a no-op on unsupported platforms. Activation errors are
// swallowed so a later QueryActive simply answers false.
func (b *Bridge) ActivateOnce(ctx context.Context) {
	if b.sdk == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activated {
		return
	}

	if err := b.sdk.Activate(ctx, b.sdkKey); err != nil {
		b.logger.Error("sdk activation failed", zap.Error(err))
		return
	}
	b.activated = true
	b.logger.Info("sdk activated")
}

// QueryActive reports whether the configured access level is active for
// the signed-in platform identity. Never fails: any fetch error answers
// false.
func (b *Bridge) QueryActive(ctx context.Context) bool {
	if b.sdk == nil {
		return false
	}
	b.ActivateOnce(ctx)

	profile, err := b.sdk.Profile(ctx)
	if err != nil {
		b.logger.Warn("failed to fetch entitlement profile", zap.Error(err))
		return false
	}
	if profile == nil || profile.AccessLevels == nil {
		b.logger.Debug("no entitlement profile on record")
		return false
	}

	level, ok := profile.AccessLevels[b.accessLevel]
	return ok && level.IsActive
}

// ListOfferings returns the purchase offerings for the configured
// placement. Empty on error or on unsupported platforms.
func (b *Bridge) ListOfferings(ctx context.Context) []Offering {
	if b.sdk == nil {
		return nil
	}
	b.ActivateOnce(ctx)

	offering, err := b.sdk.Paywall(ctx, b.placementID)
	if err != nil {
		b.logger.Warn("failed to fetch paywall", zap.Error(err))
		return nil
	}
	if offering == nil {
		return nil
	}
	return []Offering{*offering}
}

// ListProducts returns the products of an offering. Empty on error or on
// unsupported platforms.
func (b *Bridge) ListProducts(ctx context.Context, offering *Offering) []Product {
	if b.sdk == nil || offering == nil {
		return nil
	}
	b.ActivateOnce(ctx)

	products, err := b.sdk.Products(ctx, offering)
	if err != nil {
		b.logger.Warn("failed to fetch products", zap.Error(err))
		return nil
	}
	return products
}

// Purchase executes the purchase flow for a product. Outcomes:
// a profile confirming entitlement, ErrPurchaseCancelled when the user
// backed out, ErrVerificationFailed when the SDK returned an
// unverifiable profile, or any other error from the SDK.
func (b *Bridge) Purchase(ctx context.Context, product Product) (*Profile, error) {
	if b.sdk == nil {
		return nil, ErrUnsupported
	}
	b.ActivateOnce(ctx)

	profile, err := b.sdk.Purchase(ctx, product)
	if err != nil {
		if errors.Is(err, ErrPurchaseCancelled) {
			metrics.PurchasesTotal.WithLabelValues("cancelled").Inc()
			return nil, ErrPurchaseCancelled
		}
		metrics.PurchasesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if profile != nil && profile.Cancelled {
		metrics.PurchasesTotal.WithLabelValues("cancelled").Inc()
		return nil, ErrPurchaseCancelled
	}

	if profile == nil || profile.AccessLevels == nil {
		if b.devMode {
			// Sandbox receipts often fail verification; tolerated only
			// behind the explicit dev-mode flag.
			b.logger.Warn("ignoring purchase verification failure in dev mode")
			metrics.PurchasesTotal.WithLabelValues("unverified").Inc()
			if profile == nil {
				profile = &Profile{}
			}
			return profile, nil
		}
		metrics.PurchasesTotal.WithLabelValues("verification_failed").Inc()
		return nil, ErrVerificationFailed
	}

	metrics.PurchasesTotal.WithLabelValues("success").Inc()
	b.logger.Info("purchase successful", zap.String("product", product.ID))
	return profile, nil
}

// Restore re-derives entitlement from prior purchases. A no-op on
// unsupported platforms; raises on failure.
func (b *Bridge) Restore(ctx context.Context) error {
	if b.sdk == nil {
		return nil
	}
	b.ActivateOnce(ctx)

	if _, err := b.sdk.Restore(ctx); err != nil {
		return err
	}
	b.logger.Info("purchases restored")
	return nil
}
