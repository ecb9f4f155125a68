package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxRecordSize is the largest encrypted record a push service accepts.
const maxRecordSize = 4096

// pushRecord is one accepted push, kept for inspection.
type pushRecord struct {
	Token      string    `json:"token"`
	TTL        string    `json:"ttl"`
	Urgency    string    `json:"urgency"`
	Topic      string    `json:"topic,omitempty"`
	BodyBytes  int       `json:"body_bytes"`
	ReceivedAt time.Time `json:"received_at"`
}

// InboxResponse is what a status check returns for one token.
type InboxResponse struct {
	Token    string       `json:"token"`
	Accepted int          `json:"accepted"`
	Gone     bool         `json:"gone"`
	Last     *pushRecord  `json:"last,omitempty"`
	History  []pushRecord `json:"history,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	ServiceID  string    `json:"service_id"`
	Timestamp  time.Time `json:"timestamp"`
	AcceptRate float64   `json:"accept_rate"`
}

// MockPushService simulates a browser push service: the per-subscription
// endpoint accepts encrypted payloads and answers with the status codes the
// real services use (201, 400, 404, 410, 413, 429, 503).
type MockPushService struct {
	mu sync.Mutex

	acceptRate    float64 // remainder is split by the knobs below
	goneRate      float64 // chance an accept-roll loser turns 410 and stays gone
	rateLimitRate float64 // chance of 429 before any other roll
	minDelay      time.Duration
	maxDelay      time.Duration

	serviceID string
	rng       *rand.Rand

	inbox map[string][]pushRecord
	gone  map[string]bool
}

// NewMockPushService creates a new mock push service instance
func NewMockPushService(acceptRate float64, minDelay, maxDelay time.Duration) *MockPushService {
	return &MockPushService{
		acceptRate:    acceptRate,
		goneRate:      0.5,
		rateLimitRate: 0,
		minDelay:      minDelay,
		maxDelay:      maxDelay,
		serviceID:     "MOCK_PUSH_" + uuid.New().String()[:8],
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		inbox:         make(map[string][]pushRecord),
		gone:          make(map[string]bool),
	}
}

func (m *MockPushService) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	delta := m.maxDelay - m.minDelay
	m.mu.Lock()
	n := m.rng.Int63n(int64(delta))
	m.mu.Unlock()
	return m.minDelay + time.Duration(n)
}

// decide rolls the outcome for one push to token. 410 is sticky: once a
// token is gone it stays gone, the way a real service treats an expired
// subscription.
func (m *MockPushService) decide(token string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gone[token] {
		return http.StatusGone
	}
	if m.rng.Float64() < m.rateLimitRate {
		return http.StatusTooManyRequests
	}
	if m.rng.Float64() < m.acceptRate {
		return http.StatusCreated
	}
	if m.rng.Float64() < m.goneRate {
		m.gone[token] = true
		return http.StatusGone
	}
	return http.StatusServiceUnavailable
}

func (m *MockPushService) record(token string, rec pushRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox[token] = append(m.inbox[token], rec)
}

func (m *MockPushService) markGone(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gone[token] = true
}

func (m *MockPushService) snapshot(token string) InboxResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.inbox[token]
	resp := InboxResponse{
		Token:    token,
		Accepted: len(history),
		Gone:     m.gone[token],
		History:  history,
	}
	if len(history) > 0 {
		resp.Last = &history[len(history)-1]
	}
	return resp
}

// Handler struct holds the mock service and routes
type Handler struct {
	service *MockPushService
}

func NewHandler(service *MockPushService) *Handler {
	return &Handler{service: service}
}

// Push handles the per-subscription endpoint, the URL a Subscription row
// points at.
func (h *Handler) Push(c *gin.Context) {
	token := c.Param("token")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if len(body) > maxRecordSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("record exceeds %d bytes", maxRecordSize),
		})
		return
	}

	// A real push service refuses unauthenticated or unencrypted posts.
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(strings.ToLower(auth), "vapid") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing vapid authorization"})
		return
	}
	if c.GetHeader("Content-Encoding") != "aes128gcm" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content-encoding must be aes128gcm"})
		return
	}

	time.Sleep(h.service.randomDelay())

	status := h.service.decide(token)
	switch status {
	case http.StatusCreated:
		h.service.record(token, pushRecord{
			Token:      token,
			TTL:        c.GetHeader("TTL"),
			Urgency:    c.GetHeader("Urgency"),
			Topic:      c.GetHeader("Topic"),
			BodyBytes:  len(body),
			ReceivedAt: time.Now(),
		})
		log.Info().
			Str("token", token).
			Int("bytes", len(body)).
			Str("urgency", c.GetHeader("Urgency")).
			Msg("Push accepted")
		c.Status(http.StatusCreated)

	case http.StatusGone:
		log.Warn().Str("token", token).Msg("Subscription gone")
		c.JSON(http.StatusGone, gin.H{"error": "subscription expired or unsubscribed"})

	case http.StatusTooManyRequests:
		log.Warn().Str("token", token).Msg("Rate limited")
		c.Header("Retry-After", "5")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})

	default:
		log.Warn().Str("token", token).Int("status", status).Msg("Push failed")
		c.JSON(status, gin.H{"error": "service temporarily unavailable"})
	}
}

// Expire marks a token gone so the next push gets 410, for driving the
// retire path from tests.
func (h *Handler) Expire(c *gin.Context) {
	token := c.Param("token")
	h.service.markGone(token)
	log.Info().Str("token", token).Msg("Token expired on request")
	c.Status(http.StatusNoContent)
}

// GetInbox reports what a token has received so far.
func (h *Handler) GetInbox(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	c.JSON(http.StatusOK, h.service.snapshot(token))
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	h.service.mu.Lock()
	rate := h.service.acceptRate
	h.service.mu.Unlock()

	c.JSON(http.StatusOK, HealthResponse{
		Status:     "healthy",
		ServiceID:  h.service.serviceID,
		Timestamp:  time.Now(),
		AcceptRate: rate,
	})
}

// UpdateConfig allows changing failure injection at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		AcceptRate    *float64 `json:"accept_rate"`
		GoneRate      *float64 `json:"gone_rate"`
		RateLimitRate *float64 `json:"rate_limit_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	h.service.mu.Lock()
	if config.AcceptRate != nil && *config.AcceptRate >= 0 && *config.AcceptRate <= 1.0 {
		h.service.acceptRate = *config.AcceptRate
	}
	if config.GoneRate != nil && *config.GoneRate >= 0 && *config.GoneRate <= 1.0 {
		h.service.goneRate = *config.GoneRate
	}
	if config.RateLimitRate != nil && *config.RateLimitRate >= 0 && *config.RateLimitRate <= 1.0 {
		h.service.rateLimitRate = *config.RateLimitRate
	}
	accept, gone, limit := h.service.acceptRate, h.service.goneRate, h.service.rateLimitRate
	h.service.mu.Unlock()

	log.Info().
		Float64("accept_rate", accept).
		Float64("gone_rate", gone).
		Float64("rate_limit_rate", limit).
		Msg("Updated failure injection")

	c.JSON(http.StatusOK, gin.H{
		"accept_rate":     accept,
		"gone_rate":       gone,
		"rate_limit_rate": limit,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	// Add request logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	// The push endpoint lives at the root the way real services shape their
	// subscription URLs; everything else sits under /api/v1.
	router.POST("/push/:token", handler.Push)

	v1 := router.Group("/api/v1")
	{
		v1.DELETE("/push/:token", handler.Expire)
		v1.GET("/inbox/:token", handler.GetInbox)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// Root health check
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Get configuration from environment
	port := getEnv("PORT", "8082")
	acceptRate := getEnvFloat("ACCEPT_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 10*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 200*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("accept_rate", acceptRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock Push Service")

	service := NewMockPushService(acceptRate, minDelay, maxDelay)
	handler := NewHandler(service)
	router := SetupRouter(handler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
