package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/queue"
	"github.com/iliyamo/techblog-auth/internal/repository"
	"github.com/iliyamo/techblog-auth/internal/token"
)

// memStore is an in-memory CredentialStore that records every call.
type memStore struct {
	mu     sync.Mutex
	users  map[string]model.User
	roles  map[model.RoleType]model.Role
	nextID uint64
	calls  []string
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]model.User{},
		roles: map[model.RoleType]model.Role{
			model.RoleUser:  {ID: 1, Authority: model.RoleUser},
			model.RoleAdmin: {ID: 2, Authority: model.RoleAdmin},
		},
	}
}

func (m *memStore) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *memStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	m.record("FindUserByEmail")
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if u.Token != nil {
		tok := *u.Token
		u.Token = &tok
	}
	return u, nil
}

func (m *memStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.record("ExistsByEmail")
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[email]
	return ok, nil
}

func (m *memStore) SaveUser(ctx context.Context, u model.User) (model.User, error) {
	m.record("SaveUser")
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		if _, ok := m.users[u.Email]; ok {
			return model.User{}, repository.ErrEmailExists
		}
		m.nextID++
		u.ID = m.nextID
	}
	if u.Token != nil {
		tok := *u.Token
		tok.UserID = u.ID
		u.Token = &tok
	}
	m.users[u.Email] = u
	return u, nil
}

func (m *memStore) FindRoleByAuthority(_ context.Context, authority model.RoleType) (model.Role, error) {
	m.record("FindRoleByAuthority")
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[authority]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *memStore) InvalidateRefreshToken(_ context.Context, userID uint64) error {
	m.record("InvalidateRefreshToken")
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, u := range m.users {
		if u.ID == userID && u.Token != nil {
			tok := *u.Token
			tok.IsValid = false
			u.Token = &tok
			m.users[email] = u
		}
	}
	return nil
}

func (m *memStore) storedToken(email string) *model.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok || u.Token == nil {
		return nil
	}
	tok := *u.Token
	return &tok
}

// plainHasher prefixes instead of hashing and counts calls.
type plainHasher struct {
	mu       sync.Mutex
	hashes   int
	verifies int
}

func (h *plainHasher) Hash(plain string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return "hashed:" + plain, nil
}

func (h *plainHasher) Verify(hash, plain string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	if !strings.HasPrefix(hash, "hashed:") {
		return false, errors.New("malformed hash")
	}
	return hash == "hashed:"+plain, nil
}

// fixedClock is a settable clock.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// chanPublisher forwards events to a buffered channel.
type chanPublisher struct{ ch chan queue.AuthEvent }

func newChanPublisher() *chanPublisher {
	return &chanPublisher{ch: make(chan queue.AuthEvent, 16)}
}

func (p *chanPublisher) Publish(_ context.Context, ev queue.AuthEvent) error {
	p.ch <- ev
	return nil
}

// brokenVerifyCodec issues normally but fails to decode anything.
type brokenVerifyCodec struct{ *token.Codec }

func (brokenVerifyCodec) Verify(string) (token.Claims, error) {
	return token.Claims{}, token.ErrDecode
}
