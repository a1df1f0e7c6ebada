// Package auth verifies the administrator credentials that authorize
// overrides.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/SoarinFerret/TimeWarden/internal/clock"
)

var (
	ErrInvalidCredential = errors.New("invalid override credential")
	ErrRateLimited       = errors.New("too many failed override attempts")
)

const (
	DefaultAttemptsPerMinute = 5
	DefaultBurst             = 5

	hashCost = 10
)

// Admin is a configured administrator.
type Admin struct {
	Name         string `toml:"name"`
	PasswordHash string `toml:"password_hash"`
}

// HashPassword creates a bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// unknownAdminHash is compared against when the name matches no admin, so
// that a failure takes as long whether or not the name exists.
func unknownAdminHash() string {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("timewarden-unknown-admin"), hashCost)
		if err == nil {
			dummyHash = string(h)
		}
	})
	return dummyHash
}

// Authenticator checks "name:password" credentials against the configured
// admins. Failed attempts are rate limited per profile so that a supervised
// user cannot guess at the prompt.
type Authenticator struct {
	clock   clock.Clock
	every   rate.Limit
	burst   int
	compare func(password, hash string) bool

	mu       sync.Mutex
	admins   map[string]string
	limiters map[string]*rate.Limiter
}

func NewAuthenticator(admins []Admin, clk clock.Clock, perMinute, burst int) *Authenticator {
	if perMinute <= 0 {
		perMinute = DefaultAttemptsPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	a := &Authenticator{
		clock:    clk,
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		compare:  CheckPassword,
		limiters: make(map[string]*rate.Limiter),
	}
	a.SetAdmins(admins)
	return a
}

// SetAdmins replaces the admin list, e.g. on configuration reload.
func (a *Authenticator) SetAdmins(admins []Admin) {
	m := make(map[string]string, len(admins))
	for _, ad := range admins {
		m[ad.Name] = ad.PasswordHash
	}
	a.mu.Lock()
	a.admins = m
	a.mu.Unlock()
}

// now is a time base for the limiters that moves with the monotonic clock,
// so setting the wall clock back does not refill the bucket.
func (a *Authenticator) now() time.Time {
	return time.Unix(0, 0).Add(a.clock.Monotonic())
}

func (a *Authenticator) limiter(profileID string) *rate.Limiter {
	l, ok := a.limiters[profileID]
	if !ok {
		l = rate.NewLimiter(a.every, a.burst)
		a.limiters[profileID] = l
	}
	return l
}

// Verify returns the admin name if credential is valid for an override on
// profileID.
func (a *Authenticator) Verify(profileID, credential string) (string, error) {
	a.mu.Lock()
	l := a.limiter(profileID)
	now := a.now()
	if l.TokensAt(now) < 1 {
		a.mu.Unlock()
		return "", ErrRateLimited
	}
	name, password, _ := strings.Cut(credential, ":")
	hash, known := a.admins[name]
	a.mu.Unlock()

	if !known {
		hash = unknownAdminHash()
	}
	if ok := a.compare(password, hash); ok && known && password != "" {
		return name, nil
	}

	a.mu.Lock()
	l.AllowN(now, 1)
	a.mu.Unlock()
	if name == "" {
		return "", fmt.Errorf("%w: expected name:password", ErrInvalidCredential)
	}
	return "", fmt.Errorf("%w for %q", ErrInvalidCredential, name)
}
