package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rawblock/coinjoin-composer/internal/bitcoin"
	"github.com/rawblock/coinjoin-composer/internal/compose"
	"github.com/rawblock/coinjoin-composer/internal/db"
	"github.com/rawblock/coinjoin-composer/internal/solver"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// maxComposeTimeout caps the per-call solver timeout a client may request,
// so a single request cannot pin a solver subprocess for hours.
const maxComposeTimeout = 10 * time.Minute

type APIHandler struct {
	dbStore *db.PostgresStore
	oracle  solver.Oracle
	wsHub   *StreamHub
	timeout time.Duration
}

func SetupRouter(dbStore *db.PostgresStore, oracle solver.Oracle, wsHub *StreamHub, solverTimeout time.Duration) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		dbStore: dbStore,
		oracle:  oracle,
		wsHub:   wsHub,
		timeout: solverTimeout,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
	}

	// ── Protected endpoints (require API_AUTH_TOKEN if set) ────
	// The websocket stream authenticates via ?token= (see bearerToken).
	auth := r.Group("/api/v1")
	auth.Use(RequireAuth())
	{
		auth.GET("/jobs/:id", handler.handleGetJob)
		auth.GET("/stream", wsHub.Subscribe)
	}

	// Compose additionally debits the per-IP solver time budget: every
	// accepted request may pin a z3 subprocess for the iteration timeout.
	solve := auth.Group("")
	solve.Use(NewSolverBudget(solverTimeout).Middleware())
	{
		solve.POST("/compose", handler.handleCompose)
	}

	return r
}

// composeRequest wraps a scenario with per-request solver options.
type composeRequest struct {
	models.Scenario
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

// handleCompose runs the full optimization loop synchronously and returns
// the composed transaction, its audit, and the raw model.
// POST /api/v1/compose
func (h *APIHandler) handleCompose(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sc := &req.Scenario
	if err := compose.ValidateScenario(sc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scenario", "details": err.Error()})
		return
	}

	timeout := h.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
		if timeout > maxComposeTimeout {
			timeout = maxComposeTimeout
		}
	}

	jobID := uuid.New().String()
	opt := &compose.Optimizer{
		Oracle:  h.oracle,
		Timeout: timeout,
		OnProgress: func(ev compose.Progress) {
			h.wsHub.Publish(jobID, "compose_progress", ev)
		},
	}

	tx, err := opt.Optimize(c.Request.Context(), sc)
	if errors.Is(err, compose.ErrInfeasible) {
		h.persistJob(jobID, "infeasible", sc, nil)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"jobId":  jobID,
			"status": "infeasible",
			"error":  "No coinjoin layout satisfies the scenario within the solver budget",
		})
		return
	}
	if err != nil {
		h.persistJob(jobID, "error", sc, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Compose failed", "details": err.Error()})
		return
	}

	audit := compose.Audit(tx, sc)
	if !audit.Passed {
		// A failed audit means the adapter handed back a bad model; never
		// surface the layout as solved.
		h.persistJob(jobID, "error", sc, nil)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Composed transaction failed post-compose audit",
			"audit": audit,
		})
		return
	}

	template, err := bitcoin.BuildTemplate(tx)
	if err != nil {
		log.Printf("[API] template assembly failed for job %s: %v", jobID, err)
	}

	h.persistJob(jobID, "solved", sc, tx)

	resp := gin.H{
		"jobId":       jobID,
		"status":      "solved",
		"transaction": tx,
		"audit":       audit,
	}
	if template != nil {
		resp["templateVsize"] = bitcoin.EstimateVsize(len(tx.Inputs), len(tx.Outputs))
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetJob returns a persisted solve run.
// GET /api/v1/jobs/:id
func (h *APIHandler) handleGetJob(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	jobID := c.Param("id")
	job, err := h.dbStore.GetComposeJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found", "details": err.Error()})
		return
	}

	outputs, err := h.dbStore.GetComposeOutputs(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job outputs", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job, "outputs": outputs})
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "RawBlock CoinJoin Composer v1.0",
		"capabilities": gin.H{
			"smt_backend":      "z3",
			"objectives":       []string{"anonymity_score", "legacy_unique_outputs"},
			"progress_stream":  true,
			"post_compose_audit": true,
		},
		"dbConnected": h.dbStore != nil,
	})
}

func (h *APIHandler) persistJob(jobID, status string, sc *models.Scenario, tx *models.Transaction) {
	if h.dbStore == nil {
		return
	}
	if err := h.dbStore.SaveComposeJob(context.Background(), jobID, status, sc, tx); err != nil {
		log.Printf("Failed to save compose job to DB: %v", err)
	}
}
