// Package service provides the in-memory business logic backing the
// development stub server.
package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

var (
	// ErrEmailTaken is returned when signing up with a known email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
)

// UserService holds user accounts in memory.
type UserService struct {
	logger *logger.Logger

	mu        sync.RWMutex
	users     map[string]*model.User
	byEmail   map[string]string
	passwords map[string]string
}

// NewUserService creates an empty user service.
func NewUserService(log *logger.Logger) *UserService {
	return &UserService{
		logger:    log.WithComponent("users"),
		users:     make(map[string]*model.User),
		byEmail:   make(map[string]string),
		passwords: make(map[string]string),
	}
}

// Signup registers a new account.
func (s *UserService) Signup(email, fullName, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, ErrEmailTaken
	}

	now := time.Now()
	user := &model.User{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Email:     email,
		FullName:  fullName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	s.byEmail[email] = user.ID
	s.passwords[user.ID] = password

	return user.Clone(), nil
}

// Authenticate checks credentials and returns the user.
func (s *UserService) Authenticate(email, password string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok || s.passwords[id] != password {
		return nil, ErrInvalidCredentials
	}
	return s.users[id].Clone(), nil
}

// Get returns a user by id.
func (s *UserService) Get(id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.Clone(), nil
}

// UpdateProfile applies a partial profile update and returns the user.
// Zero-valued fields are left untouched.
func (s *UserService) UpdateProfile(id string, req model.UpdateProfileRequest) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.AvatarURL != "" {
		user.AvatarURL = req.AvatarURL
	}
	user.UpdatedAt = time.Now()
	return user.Clone(), nil
}

// IncrementMessageCount bumps the lifetime message count.
func (s *UserService) IncrementMessageCount(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[id]; ok {
		user.MessageCount++
		user.UpdatedAt = time.Now()
	}
}

// SyncIAP mirrors a platform purchase receipt into the entitlement
// record, granting paid access.
func (s *UserService) SyncIAP(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.HasPaidAccess = true
	user.Subscription = &model.Subscription{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Status: "active",
	}
	user.UpdatedAt = time.Now()
	s.logger.Info("iap subscription synced")
	return nil
}

// CancelSubscription marks the subscription canceled and revokes paid
// access at period end. The stub revokes immediately.
func (s *UserService) CancelSubscription(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.HasPaidAccess = false
	if user.Subscription != nil {
		user.Subscription.Status = "canceled"
		user.Subscription.CancelAtPeriodEnd = true
	}
	user.UpdatedAt = time.Now()
	return nil
}

// DisconnectPlaid removes the bank link.
func (s *UserService) DisconnectPlaid(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PlaidIntegration = nil
	user.UpdatedAt = time.Now()
	return nil
}
