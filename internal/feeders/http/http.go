// Package http is a demo HTTP ingress feeder: the external collaborator
// spec §1 describes as out of scope for the core ("HTTP/WebSocket
// transports... they feed messages into the core"). It accepts a JSON
// envelope over HTTP and calls Kernel.SendProtected, using the teacher's
// gin + gin-contrib/cors middleware composition
// (internal/api/middleware/{cors,rate}.go).
package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
)

// CORSConfig mirrors the teacher's middleware.CORSConfig.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns permissive defaults suitable for local
// development, matching the teacher's DefaultCORSConfig.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func corsMiddleware(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}

// rateLimitMiddleware throttles ingress per client IP, matching the
// teacher's middleware.RateLimit.
func rateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	var (
		mu      sync.RWMutex
		clients = make(map[string]*rate.Limiter)
	)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		limiter, ok := clients[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rps), burst)
			clients[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Envelope is the JSON shape accepted on POST /send.
type Envelope struct {
	CallerPublicKey string                 `json:"callerPublicKey" binding:"required"`
	Path            string                 `json:"path" binding:"required"`
	Body            map[string]interface{} `json:"body"`
	Type            string                 `json:"type"`
	TimeoutMs       int                    `json:"timeoutMs"`
}

// Feeder hosts a gin HTTP server that forwards each request into the
// kernel via SendProtected. Callers must already hold a registered
// friend principal (see RegisterCaller) before sending — the feeder
// itself never manufactures authority.
type Feeder struct {
	k      *kernel.Kernel
	engine *gin.Engine
	srv    *http.Server

	mu       sync.RWMutex
	callers  map[string]principal.PKR
}

// NewFeeder builds a gin engine wired to k, with CORS and per-IP rate
// limiting installed ahead of its routes: POST /send, GET /healthz, and
// GET /metrics when k has metrics.
func NewFeeder(k *kernel.Kernel, cors CORSConfig, rps float64, burst int) *Feeder {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cors))
	engine.Use(rateLimitMiddleware(rps, burst))

	f := &Feeder{k: k, engine: engine, callers: make(map[string]principal.PKR)}
	engine.POST("/send", f.handleSend)
	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if m := k.Metrics(); m != nil {
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}
	return f
}

// RegisterCaller allocates (or reuses) a friend principal for an
// external caller identified by an opaque token, returning its public
// key so subsequent envelopes can reference it.
func (f *Feeder) RegisterCaller(token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pkr, ok := f.callers[token]; ok {
		return pkr.PublicKey, nil
	}
	pkr, err := f.k.Principals().CreatePrincipal(principal.KindFriend, principal.CreateOptions{
		Metadata: map[string]interface{}{"token": token},
	})
	if err != nil {
		return "", err
	}
	f.callers[token] = pkr
	return pkr.PublicKey, nil
}

func (f *Feeder) resolveCaller(publicKey string) (principal.PKR, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, pkr := range f.callers {
		if pkr.PublicKey == publicKey {
			return pkr, true
		}
	}
	return principal.PKR{}, false
}

func (f *Feeder) handleSend(c *gin.Context) {
	var env Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller, ok := f.resolveCaller(env.CallerPublicKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown caller"})
		return
	}

	msgType := message.TypeSimple
	if env.Type != "" {
		msgType = message.Type(env.Type)
	}
	var body interface{} = env.Body
	msg, err := message.NewWithType(env.Path, body, msgType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := kernel.SendOptions{}
	if env.TimeoutMs > 0 {
		opts.ResponseRequired = &kernel.ResponseRequired{Timeout: time.Duration(env.TimeoutMs) * time.Millisecond}
	}

	result, err := f.k.SendProtected(caller, msg, opts)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// Run starts the HTTP server on addr. It blocks until the server stops
// or returns an error other than http.ErrServerClosed.
func (f *Feeder) Run(addr string) error {
	f.srv = &http.Server{Addr: addr, Handler: f.engine}
	if err := f.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts the HTTP server down.
func (f *Feeder) Close() error {
	if f.srv == nil {
		return nil
	}
	return f.srv.Close()
}
