package api

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// bearerToken extracts the client credential. Normal requests carry it as
// "Authorization: Bearer <token>"; websocket subscriptions carry it as a
// ?token= query parameter instead, because browsers cannot attach headers
// to a websocket upgrade.
func bearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

// RequireAuth guards the compose, job, and progress-stream endpoints with
// the shared API_AUTH_TOKEN. If the token is not set, all requests are
// allowed (dev mode).
// WARNING: In GIN_MODE=release, leaving API_AUTH_TOKEN unset lets anyone
// submit scenarios and burn solver time. Always set a strong token in prod.
func RequireAuth() gin.HandlerFunc {
	token := os.Getenv("API_AUTH_TOKEN")

	if token == "" && os.Getenv("GIN_MODE") == "release" {
		log.Println("[SECURITY WARNING] API_AUTH_TOKEN is not set in release mode. " +
			"Anyone can submit compose jobs and consume solver capacity. " +
			"Set API_AUTH_TOKEN in your environment to enforce authentication.")
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		supplied := bearerToken(c)
		if supplied == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing credentials",
				"hint":  "Use: Authorization: Bearer <API_AUTH_TOKEN> (or ?token= on the websocket stream)",
			})
			c.Abort()
			return
		}

		// Constant-time comparison prevents timing-based token enumeration.
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────────
// Per-IP Solver Time Budget
//
// Request counting is the wrong unit for this service: one accepted
// compose request pins a z3 subprocess for up to the iteration timeout on
// every optimizer iteration, so two requests can differ in cost by three
// orders of magnitude. The scarce resource is solver wall-clock.
//
// Each client IP holds a budget of solver time. Admitting a compose
// request debits one full iteration timeout (the worst case the first
// solver call can cost before the driver regains control); the budget
// refills continuously at one iteration timeout per refillEvery. A client
// whose budget cannot cover an iteration receives 429 with a Retry-After
// telling it when the budget will.
// ──────────────────────────────────────────────────────────────────────

const (
	// budgetDepth is how many worst-case iterations a client may start
	// back-to-back before refill pacing kicks in.
	budgetDepth = 3
	// refillEvery is the wall-clock period over which one iteration
	// timeout of budget is restored.
	refillEvery = 2 * time.Minute
	// accountIdleReap is how long an account may sit untouched before
	// its state is discarded.
	accountIdleReap = 30 * time.Minute
)

type solverAccount struct {
	remaining time.Duration
	lastSeen  time.Time
}

// SolverBudget meters solver wall-clock per client IP.
type SolverBudget struct {
	iterationTimeout time.Duration
	mu               sync.Mutex
	accounts         map[string]*solverAccount
}

// NewSolverBudget creates a budget sized to the service's per-iteration
// solver timeout.
func NewSolverBudget(iterationTimeout time.Duration) *SolverBudget {
	b := &SolverBudget{
		iterationTimeout: iterationTimeout,
		accounts:         make(map[string]*solverAccount),
	}
	go b.reapLoop()
	return b
}

// admit debits one iteration timeout from the client's budget. On refusal
// it returns how long until the budget covers one iteration again.
func (b *SolverBudget) admit(ip string, now time.Time) (bool, time.Duration) {
	max := budgetDepth * b.iterationTimeout

	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[ip]
	if !ok {
		acct = &solverAccount{remaining: max, lastSeen: now}
		b.accounts[ip] = acct
	}

	// Continuous refill: one iteration timeout per refillEvery elapsed.
	elapsed := now.Sub(acct.lastSeen)
	refill := time.Duration(float64(b.iterationTimeout) * (float64(elapsed) / float64(refillEvery)))
	acct.remaining += refill
	if acct.remaining > max {
		acct.remaining = max
	}
	acct.lastSeen = now

	if acct.remaining >= b.iterationTimeout {
		acct.remaining -= b.iterationTimeout
		return true, 0
	}

	deficit := b.iterationTimeout - acct.remaining
	wait := time.Duration(float64(refillEvery) * (float64(deficit) / float64(b.iterationTimeout)))
	return false, wait
}

func (b *SolverBudget) reapLoop() {
	ticker := time.NewTicker(accountIdleReap)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-accountIdleReap)
		b.mu.Lock()
		for ip, acct := range b.accounts {
			if acct.lastSeen.Before(cutoff) {
				delete(b.accounts, ip)
			}
		}
		b.mu.Unlock()
	}
}

// Middleware admits or refuses compose requests against the solver budget.
func (b *SolverBudget) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := b.admit(c.ClientIP(), time.Now())
		if !ok {
			retryAfter := int(wait.Seconds()) + 1
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":             "Solver time budget exhausted",
				"retryAfterSeconds": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
