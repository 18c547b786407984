package auth

import (
	"context"
	"sync"
	"time"

	"authgate.org/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store used by tests and local development.
// All operations, including RedeemResetToken's consume-plus-rotate, run
// under one lock, giving the same atomicity the SQL store gets from its
// transaction.
type MemStore struct {
	mu     sync.Mutex
	users  map[string]*User               // by ID
	emails map[string]string              // normalized email -> ID
	tokens map[string]*PasswordResetToken // by token hash
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:  make(map[string]*User),
		emails: make(map[string]string),
		tokens: make(map[string]*PasswordResetToken),
	}
}

func (s *MemStore) Users(context.Context) UserStore { return (*memUserStore)(s) }

func (s *MemStore) ResetTokens(context.Context) ResetTokenStore { return (*memTokenStore)(s) }

func (s *MemStore) RedeemResetToken(_ context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[tokenHash]
	if !ok || tok.UsedAt != nil || !tok.ExpiresAt.After(now) {
		return "", ErrNotFound
	}
	user, ok := s.users[tok.UserID]
	if !ok {
		return "", ErrNotFound
	}
	used := now
	tok.UsedAt = &used
	user.PasswordHash = newPasswordHash
	user.UpdatedAt = now
	return user.ID, nil
}

type memUserStore MemStore

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	cp := *u
	s.users[u.ID] = &cp
	s.emails[u.Email] = u.ID
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *memUserStore) List(context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memUserStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if u.Email != cur.Email {
		if _, taken := s.emails[u.Email]; taken {
			return ErrAlreadyExists
		}
		delete(s.emails, cur.Email)
		s.emails[u.Email] = u.ID
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type memTokenStore MemStore

func (s *memTokenStore) Create(_ context.Context, tok *PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tokens[tok.TokenHash]; dup {
		return ErrAlreadyExists
	}
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	cp := *tok
	s.tokens[tok.TokenHash] = &cp
	return nil
}

func (s *memTokenStore) FindByHash(_ context.Context, tokenHash string) (*PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

// TokenCount reports stored reset tokens; used by enumeration tests.
func (s *MemStore) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
