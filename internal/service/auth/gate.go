package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/inhapress/stockledger/internal/config"
)

// ErrRateLimited is returned when too many wrong passwords were tried.
var ErrRateLimited = errors.New("too many failed admin logins")

// idleLimiterTTL is how long a client's failure budget is remembered after
// its last failed attempt.
const idleLimiterTTL = 10 * time.Minute

// Gate checks the shared admin secret and yields the privileged flag.
// Failed attempts are throttled per client so one caller guessing cannot
// lock out the others.
type Gate struct {
	hash      []byte
	perMinute int
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastFail time.Time
}

// NewGate builds a gate from the admin configuration.
func NewGate(cfg config.AdminConfig, logger *zap.Logger) (*Gate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	hash := []byte(cfg.PasswordHash)
	if len(hash) == 0 {
		if cfg.Password == "" {
			return nil, errors.New("admin password is not configured")
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is not a bcrypt hash: %w", err)
	}

	perMinute := cfg.FailedLoginsPerMin
	if perMinute <= 0 {
		perMinute = 5
	}

	return &Gate{
		hash:      hash,
		perMinute: perMinute,
		logger:    logger,
		now:       time.Now,
		limiters:  make(map[string]*clientLimiter),
	}, nil
}

// Authorize reports whether password is the admin secret for the caller
// identified by client, usually its IP. Only failed attempts count against
// that caller's rate limit.
func (g *Gate) Authorize(client, password string) (bool, error) {
	if g.throttled(client) {
		return false, ErrRateLimited
	}
	if password == "" {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		g.recordFailure(client)
		g.logger.Warn("admin authentication failed", zap.String("client", client))
		return false, nil
	}
	return true, nil
}

func (g *Gate) throttled(client string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cl, ok := g.limiters[client]
	if !ok {
		return false
	}
	return cl.limiter.TokensAt(g.now()) < 1
}

func (g *Gate) recordFailure(client string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cl, ok := g.limiters[client]
	if !ok {
		g.pruneLocked(now)
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.perMinute)), g.perMinute),
		}
		g.limiters[client] = cl
	}
	cl.limiter.AllowN(now, 1)
	cl.lastFail = now
}

func (g *Gate) pruneLocked(now time.Time) {
	for key, cl := range g.limiters {
		if now.Sub(cl.lastFail) > idleLimiterTTL {
			delete(g.limiters, key)
		}
	}
}
