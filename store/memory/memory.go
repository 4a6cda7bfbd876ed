// Package memory is an in-process lmsauth.CredentialStore for tests, demos
// and the load generator.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrEthical07/lmsauth"
)

// ErrDuplicateIdentity is returned by Add when the identity is taken.
var ErrDuplicateIdentity = errors.New("identity already registered")

// Store keeps accounts in maps guarded by a RWMutex. Returned accounts are
// copies.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*lmsauth.Account
	byIdentity map[string]string
}

func New() *Store {
	return &Store{
		byID:       make(map[string]*lmsauth.Account),
		byIdentity: make(map[string]string),
	}
}

func normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Add registers acct. ID and Identity must be non-empty.
func (s *Store) Add(acct lmsauth.Account) error {
	if acct.ID == "" || normalize(acct.Identity) == "" {
		return errors.New("account id and identity are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalize(acct.Identity)
	if _, ok := s.byIdentity[key]; ok {
		return ErrDuplicateIdentity
	}
	if _, ok := s.byID[acct.ID]; ok {
		return ErrDuplicateIdentity
	}

	stored := acct
	s.byID[acct.ID] = &stored
	s.byIdentity[key] = acct.ID
	return nil
}

// SetActive enables or disables an account.
func (s *Store) SetActive(userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[userID]
	if !ok {
		return lmsauth.ErrNotFound
	}
	acct.Active = active
	return nil
}

func (s *Store) FindByIdentity(_ context.Context, identity string) (*lmsauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentity[normalize(identity)]
	if !ok {
		return nil, lmsauth.ErrNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (*lmsauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[userID]
	if !ok {
		return nil, lmsauth.ErrNotFound
	}
	out := *acct
	return &out, nil
}

func (s *Store) PersistTokenVersion(_ context.Context, userID string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[userID]
	if !ok {
		return lmsauth.ErrNotFound
	}
	acct.TokenVersion = version
	return nil
}

func (s *Store) PersistPasswordDigest(_ context.Context, userID, digest string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[userID]
	if !ok {
		return lmsauth.ErrNotFound
	}
	acct.PasswordDigest = digest
	acct.TokenVersion = version
	return nil
}

// Len returns the number of accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
