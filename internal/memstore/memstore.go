// Package memstore is an in-process implementation of the portfolio, order
// and identity stores. It backs STORAGE_DRIVER=memory and the test suites.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/portfolio"
)

// Store keeps every record in maps guarded by mutexes
type Store struct {
	mu         sync.RWMutex
	portfolios map[string]*models.Portfolio
	orders     map[string][]models.Order
	users      map[string]*models.User
	pending    map[string]*models.PendingUser

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		portfolios: make(map[string]*models.Portfolio),
		orders:     make(map[string][]models.Order),
		users:      make(map[string]*models.User),
		pending:    make(map[string]*models.PendingUser),
		locks:      make(map[string]*sync.Mutex),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// GetOrCreatePortfolio returns the user's portfolio, creating it if missing
func (s *Store) GetOrCreatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID]
	if !ok {
		p = portfolio.New(userID, startingBalance, s.now())
		s.portfolios[userID] = p
	}
	return p.Clone(), nil
}

// GetPortfolio returns the user's portfolio or errs.ErrNotFound
func (s *Store) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[userID]
	if !ok {
		return nil, fmt.Errorf("portfolio for user %s: %w", userID, errs.ErrNotFound)
	}
	return p.Clone(), nil
}

// UpdatePortfolio runs fn on a copy of the portfolio under the user's lock
// and swaps the copy in, together with the returned order, only if fn succeeds.
func (s *Store) UpdatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal, fn func(p *models.Portfolio) (*models.Order, error)) (*models.Portfolio, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.portfolios[userID]
	s.mu.RUnlock()

	var working *models.Portfolio
	if ok {
		working = current.Clone()
	} else {
		working = portfolio.New(userID, startingBalance, s.now())
	}

	order, err := fn(working)
	if err != nil {
		return nil, err
	}
	working.Version++

	s.mu.Lock()
	s.portfolios[userID] = working
	if order != nil {
		s.orders[userID] = append(s.orders[userID], *order)
	}
	s.mu.Unlock()

	return working.Clone(), nil
}

// ListOrders returns a page of the user's orders, newest first
func (s *Store) ListOrders(ctx context.Context, userID string, limit, offset int) ([]models.Order, int, error) {
	if limit <= 0 || offset < 0 {
		return nil, 0, fmt.Errorf("invalid page: limit %d, offset %d", limit, offset)
	}

	s.mu.RLock()
	all := make([]models.Order, len(s.orders[userID]))
	copy(all, s.orders[userID])
	s.mu.RUnlock()

	// appended in execution order, so a stable reverse sort keeps ties newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ExecutedAt.After(all[j].ExecutedAt)
	})

	total := len(all)
	if offset >= total {
		return []models.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// CreateUser inserts a verified user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(user)
}

func (s *Store) createUserLocked(user *models.User) error {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("user %s: %w", user.Email, errs.ErrDuplicate)
		}
	}
	u := *user
	s.users[u.ID] = &u
	return nil
}

// GetUserByID returns a user or errs.ErrNotFound
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
	}
	c := *u
	return &c, nil
}

// GetUserByEmail returns a user or errs.ErrNotFound
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, errs.ErrNotFound)
}

// SetResetToken stores a password reset token on the user
func (s *Store) SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
	}
	u.ResetToken = token
	u.ResetTokenExpiry = &expiry
	return nil
}

// UpdatePassword replaces the password hash and clears any reset token
func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.ResetTokenExpiry = nil
	return nil
}

// SavePendingUser inserts or replaces the pending signup for its email
func (s *Store) SavePendingUser(ctx context.Context, p *models.PendingUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.pending[strings.ToLower(p.Email)] = &c
	return nil
}

// GetPendingUser returns the pending signup for email or errs.ErrNotFound
func (s *Store) GetPendingUser(ctx context.Context, email string) (*models.PendingUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("pending user %s: %w", email, errs.ErrNotFound)
	}
	c := *p
	return &c, nil
}

// PromotePendingUser deletes the pending signup and inserts user in one step
func (s *Store) PromotePendingUser(ctx context.Context, email string, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := s.pending[key]; !ok {
		return fmt.Errorf("pending user %s: %w", email, errs.ErrNotFound)
	}
	if err := s.createUserLocked(user); err != nil {
		return err
	}
	delete(s.pending, key)
	return nil
}

// DeletePendingBefore purges pending signups created before cutoff
func (s *Store) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, p := range s.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(s.pending, k)
			n++
		}
	}
	return n, nil
}
