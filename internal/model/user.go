// Package model defines data structures shared by the client core.
package model

import (
	"time"
)

// User is the authoritative snapshot of the remote user. It is replaced
// wholesale on every profile refresh, never patched field by field.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// HasPaidAccess is the backend-recorded entitlement and the single
	// authoritative flag for gating. Platform purchase signals are only
	// candidates until the backend mirrors them here.
	HasPaidAccess bool `json:"hasPaidAccess"`

	// MessageCount is the lifetime number of messages the user has sent.
	MessageCount int `json:"messageCount"`

	PlaidIntegration *PlaidIntegration `json:"plaidIntegration,omitempty"`
	Subscription     *Subscription     `json:"subscription,omitempty"`
}

// Clone returns a deep copy of the user, safe to hand to observers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.PlaidIntegration != nil {
		plaid := *u.PlaidIntegration
		clone.PlaidIntegration = &plaid
	}
	if u.Subscription != nil {
		sub := *u.Subscription
		clone.Subscription = &sub
	}
	return &clone
}

// PlaidIntegration references the user's linked bank account. The access
// token stays server-side; the client only sees opaque identifiers.
type PlaidIntegration struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	ItemID        string `json:"plaidItemId"`
	InstitutionID string `json:"plaidInstitutionId"`
}

// Subscription describes the user's payment-provider subscription record.
type Subscription struct {
	ID                   string `json:"id"`
	Status               string `json:"status"`
	StripeSubscriptionID string `json:"stripeSubscriptionId"`
	CancelAtPeriodEnd    bool   `json:"cancelAtPeriodEnd"`
}

// Credentials is the login request payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the account-creation request payload.
type SignupRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// UpdateProfileRequest is the partial-update payload for the current
// user. Zero-valued fields are left untouched.
type UpdateProfileRequest struct {
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Session carries the bearer credential issued by the backend.
type Session struct {
	AccessToken string `json:"access_token"`
}

// AuthResponse is returned by login and signup.
type AuthResponse struct {
	User    User    `json:"user"`
	Session Session `json:"session"`
}

// CheckoutSession points at an externally hosted payment page.
type CheckoutSession struct {
	URL string `json:"url"`
}

// PortalSession points at the externally hosted billing management page.
type PortalSession struct {
	URL string `json:"url"`
}
