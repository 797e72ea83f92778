package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cyrenity/becguard/internal/alerts"
	"github.com/cyrenity/becguard/internal/logging"
	"github.com/cyrenity/becguard/internal/metrics"
	"github.com/cyrenity/becguard/internal/scorer"
	"github.com/cyrenity/becguard/internal/traces"
	"github.com/cyrenity/becguard/internal/validation"
)

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "BECGuard",
		"description": "Email impersonation risk scoring",
		"version":     "0.1.0",
		"orgDomain":   s.cfg.OrgDomain,
		"state":       s.engine.State(),
	})
}

// -----------------------------------------------------------------------------
// Training
// -----------------------------------------------------------------------------

// addExecutive handles POST /api/v1/executives
func (s *Server) addExecutive(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if !validation.IsValidEmail(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid email address",
		})
		return
	}

	s.engine.AddExecutive(req.Address)

	c.JSON(http.StatusCreated, gin.H{
		"address": validation.NormalizeAddress(req.Address),
		"role":    "executive",
	})
}

// trainEmail handles POST /api/v1/train
func (s *Server) trainEmail(c *gin.Context) {
	var rec scorer.EmailRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		metrics.RecordsRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := s.engine.TrainOnEmail(&rec); err != nil {
		metrics.RecordsRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_record",
			"message": err.Error(),
		})
		return
	}

	metrics.EmailsTrainedTotal.Inc()

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"state":  s.engine.State(),
	})
}

// trainBatch handles POST /api/v1/train/batch
func (s *Server) trainBatch(c *gin.Context) {
	var req struct {
		Records []*scorer.EmailRecord `json:"records" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	accepted, batchErrs := s.engine.TrainBatch(req.Records)

	metrics.EmailsTrainedTotal.Add(float64(accepted))
	metrics.RecordsRejectedTotal.Add(float64(len(batchErrs)))

	rejected := make([]gin.H, 0, len(batchErrs))
	for _, be := range batchErrs {
		rejected = append(rejected, gin.H{
			"index": be.Index,
			"error": be.Error,
		})
	}

	status := http.StatusAccepted
	if accepted == 0 && len(batchErrs) > 0 {
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{
		"accepted": accepted,
		"rejected": rejected,
		"state":    s.engine.State(),
	})
}

// finalizeTraining handles POST /api/v1/finalize
func (s *Server) finalizeTraining(c *gin.Context) {
	if s.engine.State() == scorer.StateUntrained {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "untrained",
			"message": "No training data loaded",
		})
		return
	}

	_, span := traces.StartSpan(c.Request.Context(), "scorer.FinalizeTraining")
	iterations := s.engine.FinalizeTraining()
	span.End()

	stats := s.engine.Stats()

	metrics.PropagationIterations.Set(float64(iterations))
	metrics.FinalizedProfiles.Set(float64(stats.TemporalProfiles))

	logging.L(c.Request.Context()).Info("training finalized",
		"iterations", iterations,
		"graphNodes", stats.GraphNodes,
		"temporalProfiles", stats.TemporalProfiles,
		"styleProfiles", stats.StyleProfiles,
	)

	s.hub.Broadcast(&alerts.Event{
		Type:      alerts.EventFinalized,
		Timestamp: time.Now(),
		Data:      stats,
	})

	c.JSON(http.StatusOK, gin.H{
		"state":      stats.State,
		"iterations": iterations,
		"stats":      stats,
	})
}

// -----------------------------------------------------------------------------
// Analysis
// -----------------------------------------------------------------------------

// analyzeEmail handles POST /api/v1/analyze
func (s *Server) analyzeEmail(c *gin.Context) {
	var rec scorer.EmailRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "scorer.AnalyzeEmail",
		traces.Sender(rec.From),
		traces.Recipient(rec.To),
	)
	defer span.End()

	start := time.Now()
	result, err := s.engine.AnalyzeEmail(ctx, &rec)
	if err != nil {
		if errors.Is(err, scorer.ErrNotFinalized) {
			// The indeterminate verdict still goes out on the feed;
			// callers must not treat it as low risk.
			s.hub.BroadcastVerdict(result)
			c.JSON(http.StatusConflict, gin.H{
				"error":   "not_finalized",
				"message": "Training must be finalized before analysis",
				"result":  result,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_record",
			"message": err.Error(),
		})
		return
	}

	metrics.AnalysesTotal.WithLabelValues(string(result.RiskLevel)).Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	span.SetAttributes(
		traces.RiskLevel(string(result.RiskLevel)),
		traces.RiskScore(result.RiskScore),
		traces.AssessmentID(result.ID),
	)

	switch result.RiskLevel {
	case scorer.RiskHigh, scorer.RiskCritical, scorer.RiskIndeterminate:
		s.hub.BroadcastVerdict(result)
	}

	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------
// Read endpoints
// -----------------------------------------------------------------------------

// listAssessments handles GET /api/v1/assessments/:address
func (s *Server) listAssessments(c *gin.Context) {
	address := validation.NormalizeAddress(c.Param("address"))

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be an integer between 1 and 500",
			})
			return
		}
		limit = n
	}

	results, err := s.store.ListBySender(c.Request.Context(), address, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list assessments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list assessments",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sender":      address,
		"count":       len(results),
		"assessments": results,
	})
}

// getProfile handles GET /api/v1/profiles/:address
func (s *Server) getProfile(c *gin.Context) {
	address := validation.NormalizeAddress(c.Param("address"))

	resp := gin.H{"address": address}
	found := false

	if node, ok := s.engine.Graph().Node(address); ok {
		resp["trust"] = node
		found = true
	}
	if summary, ok := s.engine.TemporalSummary(address); ok {
		resp["temporal"] = summary
		found = true
	}
	if profile, ok := s.engine.StyleProfile(address); ok {
		resp["style"] = profile
		found = true
	}

	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_address",
			"message": "No profile data for this address",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// exportGraph handles GET /api/v1/graph
func (s *Server) exportGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Graph().Export())
}

// getStats handles GET /api/v1/stats
func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine": s.engine.Stats(),
		"alerts": s.hub.Stats(),
	})
}
