// Package engine owns authentication state, the user profile, and the
// merged subscription flag. It reconciles three sources of truth: the
// stored session token, the backend subscription record, and the
// platform in-app-purchase store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/bankr-ai/assistant-client/internal/api"
	"github.com/bankr-ai/assistant-client/internal/entitlement"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/secret"
	"github.com/bankr-ai/assistant-client/internal/state"
	"github.com/bankr-ai/assistant-client/pkg/logger"
	"github.com/bankr-ai/assistant-client/pkg/metrics"
)

// bankSyncRetryDelay is the fixed wait before the single retry of the
// initial bank-data sync.
const bankSyncRetryDelay = 2 * time.Second

// AuthError signals a missing token or an authentication rejected by the
// remote. The session is cleared before an auth-rejection is returned.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// API is the remote surface the engine depends on. *api.Client satisfies it.
type API interface {
	Logout(ctx context.Context) error
	GetProfile(ctx context.Context) (*model.User, error)
	SyncIAPSubscription(ctx context.Context, userID string) error
	FetchBankData(ctx context.Context) error
	DisconnectBank(ctx context.Context) error
	CancelSubscription(ctx context.Context) error
	CreateCheckoutSession(ctx context.Context, priceID string) (*model.CheckoutSession, error)
}

// Engine orchestrates session and entitlement state. All public
// operations are serialized by one operation lock, the Go rendition of
// the app's single-threaded cooperative model: state mutated by a
// multi-step operation becomes observable only when the operation
// commits and publishes a snapshot.
type Engine struct {
	client  API
	bridge  *entitlement.Bridge
	secrets secret.Store
	priceID string
	logger  *logger.Logger

	state *state.Holder[Snapshot]
}

// New creates an engine. The bridge must already have been constructed
// (and is activated lazily by its own operations).
func New(client API, bridge *entitlement.Bridge, secrets secret.Store, priceID string, log *logger.Logger) *Engine {
	return &Engine{
		client:  client,
		bridge:  bridge,
		secrets: secrets,
		priceID: priceID,
		logger:  log.WithComponent("engine"),
		state:   newHolder(Snapshot{}),
	}
}

// Snapshot returns the current committed state.
func (e *Engine) Snapshot() Snapshot {
	return e.state.Get()
}

// Subscribe returns a channel receiving a snapshot after every committed
// state change, plus a cancel function.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	return e.state.Subscribe()
}

// Login persists the token, fetches the profile, and reconciles
// entitlement. On a failed profile fetch the token stays persisted so a
// transient blip does not force re-entry of credentials, but the user is
// not marked authenticated.
func (e *Engine) Login(ctx context.Context, token string) error {
	e.state.BeginOp()
	defer e.state.EndOp()

	if err := e.secrets.SetToken(token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	user, err := e.client.GetProfile(ctx)
	if err != nil {
		return &AuthError{Reason: "profile fetch failed", Err: err}
	}

	e.state.Stage(func(s *Snapshot) {
		s.User = user.Clone()
		s.Authenticated = true
	})

	// Best-effort: a reconciliation failure must not fail the login.
	e.reconcile(ctx)

	e.state.Commit()
	e.logger.Info("logged in", zap.String("user_id", user.ID))
	return nil
}

// Logout clears the session. The remote revocation is best-effort;
// logout always succeeds locally.
func (e *Engine) Logout(ctx context.Context) {
	e.state.BeginOp()
	defer e.state.EndOp()

	if e.state.Staged().Authenticated {
		if err := e.client.Logout(ctx); err != nil {
			e.logger.Debug("remote logout failed", zap.Error(err))
		}
	}
	if err := e.secrets.ClearToken(); err != nil {
		e.logger.Warn("failed to clear token", zap.Error(err))
	}

	e.state.Stage(func(s *Snapshot) {
		s.User = nil
		s.Authenticated = false
		s.IsSubscribed = false
	})
	e.state.Commit()
	e.logger.Info("logged out")
}

// RestoreSession restores authentication at startup from a previously
// stored token. A missing token is not an error; a failed profile fetch
// clears the stored token.
func (e *Engine) RestoreSession(ctx context.Context) error {
	e.state.BeginOp()
	defer e.state.EndOp()

	if _, err := e.secrets.Token(); err != nil {
		if errors.Is(err, secret.ErrNoToken) {
			return nil
		}
		return fmt.Errorf("failed to read token: %w", err)
	}

	user, err := e.client.GetProfile(ctx)
	if err != nil {
		// Nothing was staged; the stale token lives in the secret store,
		// not the snapshot, so there is no state change to publish.
		if clearErr := e.secrets.ClearToken(); clearErr != nil {
			e.logger.Warn("failed to clear token", zap.Error(clearErr))
		}
		return &AuthError{Reason: "session restore failed", Err: err}
	}

	e.state.Stage(func(s *Snapshot) {
		s.User = user.Clone()
		s.Authenticated = true
	})
	e.reconcile(ctx)
	e.state.Commit()
	return nil
}

// RefreshProfile fetches the profile with the stored token and replaces
// the user snapshot wholesale.
func (e *Engine) RefreshProfile(ctx context.Context) (*model.User, error) {
	e.state.BeginOp()
	defer e.state.EndOp()

	user, err := e.refreshProfile(ctx)
	e.state.Commit()
	return user, err
}

// refreshProfile is the unlocked refresh used inside multi-step
// operations. It stages but does not commit.
func (e *Engine) refreshProfile(ctx context.Context) (*model.User, error) {
	if _, err := e.secrets.Token(); err != nil {
		if errors.Is(err, secret.ErrNoToken) {
			return nil, &AuthError{Reason: "no token"}
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	user, err := e.client.GetProfile(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			// The client already dropped the token; drop the session too.
			e.state.Stage(func(s *Snapshot) {
				s.User = nil
				s.Authenticated = false
				s.IsSubscribed = false
			})
			return nil, &AuthError{Reason: "authentication rejected", Err: err}
		}
		return nil, err
	}

	e.state.Stage(func(s *Snapshot) {
		s.User = user.Clone()
		s.Authenticated = true
	})
	return user, nil
}

// ReconcileEntitlement merges the backend subscription record and the
// platform purchase store into the single trusted subscription flag.
// Idempotent and best-effort: failures resolve to "not subscribed" and
// are never raised past this operation. Observers see exactly one
// snapshot per call, after the full algorithm has run.
func (e *Engine) ReconcileEntitlement(ctx context.Context) bool {
	e.state.BeginOp()
	defer e.state.EndOp()

	subscribed := e.reconcile(ctx)
	e.state.Commit()
	return subscribed
}

func (e *Engine) reconcile(ctx context.Context) bool {
	user, err := e.refreshProfile(ctx)
	if err != nil {
		e.logger.Warn("reconciliation: profile refresh failed", zap.Error(err))
		metrics.RecordReconciliation(metrics.OutcomeError)
		return e.setSubscribed(false)
	}

	// The backend record is authoritative and short-circuits everything
	// else: a platform purchase only counts once mirrored server-side.
	if user.HasPaidAccess {
		metrics.RecordReconciliation(metrics.OutcomeSubscribed)
		return e.setSubscribed(true)
	}

	if !e.bridge.Available() {
		metrics.RecordReconciliation(metrics.OutcomeNotSubscribed)
		return e.setSubscribed(false)
	}

	if !e.bridge.QueryActive(ctx) {
		metrics.RecordReconciliation(metrics.OutcomeNotSubscribed)
		return e.setSubscribed(false)
	}

	// The platform store holds an active entitlement the backend does not
	// know about yet. It grants nothing until the sync lands.
	if err := e.client.SyncIAPSubscription(ctx, user.ID); err != nil {
		e.logger.Error("reconciliation: entitlement sync failed", zap.Error(err))
		metrics.EntitlementSyncFailures.Inc()
		metrics.RecordReconciliation(metrics.OutcomeError)
		return e.setSubscribed(false)
	}
	if _, err := e.refreshProfile(ctx); err != nil {
		e.logger.Error("reconciliation: refresh after sync failed", zap.Error(err))
		metrics.RecordReconciliation(metrics.OutcomeError)
		return e.setSubscribed(false)
	}

	metrics.RecordReconciliation(metrics.OutcomeSubscribed)
	return e.setSubscribed(true)
}

func (e *Engine) setSubscribed(v bool) bool {
	e.state.Stage(func(s *Snapshot) {
		s.IsSubscribed = v
	})
	return v
}

// Purchase runs the platform purchase flow for a product, then mirrors
// the receipt server-side and reconciles. ErrPurchaseCancelled is a
// normal early exit the caller should treat as a no-op.
func (e *Engine) Purchase(ctx context.Context, product entitlement.Product) error {
	e.state.BeginOp()
	defer e.state.EndOp()

	if _, err := e.bridge.Purchase(ctx, product); err != nil {
		if errors.Is(err, entitlement.ErrPurchaseCancelled) {
			e.logger.Info("purchase cancelled by user")
			return err
		}
		return fmt.Errorf("purchase failed: %w", err)
	}

	if user := e.state.Staged().User; user != nil {
		if err := e.client.SyncIAPSubscription(ctx, user.ID); err != nil {
			e.logger.Error("post-purchase entitlement sync failed", zap.Error(err))
			metrics.EntitlementSyncFailures.Inc()
		}
	}

	e.reconcile(ctx)
	e.state.Commit()
	return nil
}

// RestorePurchases re-derives entitlement from prior platform purchases
// and reconciles.
func (e *Engine) RestorePurchases(ctx context.Context) error {
	e.state.BeginOp()
	defer e.state.EndOp()

	if err := e.bridge.Restore(ctx); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	e.reconcile(ctx)
	e.state.Commit()
	return nil
}

// Offerings lists purchasable offerings for the configured placement.
func (e *Engine) Offerings(ctx context.Context) []entitlement.Offering {
	return e.bridge.ListOfferings(ctx)
}

// Products lists the products of an offering.
func (e *Engine) Products(ctx context.Context, offering *entitlement.Offering) []entitlement.Product {
	return e.bridge.ListProducts(ctx, offering)
}

// CheckoutURL creates a hosted checkout session for the configured price.
// The caller opens the URL externally.
func (e *Engine) CheckoutURL(ctx context.Context) (string, error) {
	session, err := e.client.CreateCheckoutSession(ctx, e.priceID)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

// CancelSubscription cancels the payment-provider subscription and
// refreshes the profile.
func (e *Engine) CancelSubscription(ctx context.Context) error {
	e.state.BeginOp()
	defer e.state.EndOp()

	if err := e.client.CancelSubscription(ctx); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if _, err := e.refreshProfile(ctx); err != nil {
		e.logger.Warn("profile refresh after cancel failed", zap.Error(err))
	}
	e.state.Commit()
	return nil
}

// DisconnectBank removes the bank link and refreshes the profile.
func (e *Engine) DisconnectBank(ctx context.Context) error {
	e.state.BeginOp()
	defer e.state.EndOp()

	if err := e.client.DisconnectBank(ctx); err != nil {
		return fmt.Errorf("failed to disconnect bank link: %w", err)
	}
	if _, err := e.refreshProfile(ctx); err != nil {
		e.logger.Warn("profile refresh after disconnect failed", zap.Error(err))
	}
	e.state.Commit()
	return nil
}

// SyncBankData triggers the initial server-side bank data pull. The pull
// is retried exactly once after a fixed delay.
func (e *Engine) SyncBankData(ctx context.Context) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(bankSyncRetryDelay), 1),
		ctx,
	)
	return backoff.Retry(func() error {
		return e.client.FetchBankData(ctx)
	}, policy)
}
