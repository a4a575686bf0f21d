package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/jobtrail/internal/classify"
	"github.com/jonathan/jobtrail/internal/config"
	"github.com/jonathan/jobtrail/internal/db"
	"github.com/jonathan/jobtrail/internal/llm"
	"github.com/jonathan/jobtrail/internal/mailbox"
	"github.com/jonathan/jobtrail/internal/oauth"
	"github.com/jonathan/jobtrail/internal/scan"
	"github.com/jonathan/jobtrail/internal/server/middleware"
	"github.com/jonathan/jobtrail/internal/server/ratelimit"
	"github.com/jonathan/jobtrail/internal/token"
)

// Scanner triggers scan cycles.
type Scanner interface {
	Scan(ctx context.Context, ownerID uuid.UUID, maxResults int) (scan.Result, error)
}

// CredentialStore is the credential surface the connection endpoints need.
type CredentialStore interface {
	GetCredential(ctx context.Context, ownerID uuid.UUID) (*db.Credential, error)
	DeleteCredential(ctx context.Context, ownerID uuid.UUID) error
}

// OAuthFlow drives the mailbox connection handshake.
type OAuthFlow interface {
	AuthURL(ownerID uuid.UUID) string
	HandleCallback(ctx context.Context, code, state string) (uuid.UUID, error)
}

// Server is the HTTP API server.
type Server struct {
	httpServer  *http.Server
	db          *db.DB
	llmClient   llm.Client
	scans       Scanner
	creds       CredentialStore
	connector   OAuthFlow
	jwtService  *JWTService
	rateLimiter *ratelimit.Limiter
	validate    *validator.Validate
	appURL      string
}

// New wires the full service and returns a server listening on the port.
func New(ctx context.Context, cfg *config.Config, port int) (*Server, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	llmClient, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, llm.DefaultModel)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	tokens := token.NewStore(database, cfg.GoogleClientID, cfg.GoogleClientSecret, nil)
	mail := mailbox.NewClient(&mailbox.Options{MaxResults: cfg.MaxScanResults})
	pipeline := scan.NewPipeline(tokens, mail, classify.New(llmClient), database, nil)

	s := &Server{
		db:          database,
		llmClient:   llmClient,
		scans:       scan.NewService(pipeline),
		creds:       database,
		connector:   oauth.NewConnector(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL, database),
		jwtService:  NewJWTService(cfg.JWTSecret),
		rateLimiter: ratelimit.NewLimiter(ratelimit.LoadConfig()),
		validate:    validator.New(),
		appURL:      cfg.AppURL,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.router()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // scan cycles fan out to provider and model calls
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// router builds the route table. Factored out so handler tests can exercise
// routes without a listening server.
func (s *Server) router() http.Handler {
	mux := http.NewServeMux()
	authed := middleware.Auth(s.jwtService.AsTokenValidator())

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /scan", authed(http.HandlerFunc(s.handleScan)))
	mux.Handle("POST /oauth/google/init", authed(http.HandlerFunc(s.handleOAuthInit)))
	mux.HandleFunc("GET /oauth/google/callback", s.handleOAuthCallback)
	mux.Handle("GET /oauth/google/status", authed(http.HandlerFunc(s.handleOAuthStatus)))
	mux.Handle("DELETE /oauth/google", authed(http.HandlerFunc(s.handleOAuthDisconnect)))

	return mux
}

// Start begins listening and blocks until an interrupt, then shuts down
// gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.rateLimiter.Stop()
	if s.llmClient != nil {
		_ = s.llmClient.Close()
	}
	s.db.Close()
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// withRateLimit rejects clients over their endpoint budget with a 429.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientIP(r), r.URL.Path, r.Method)

		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))
		}

		if !allowed {
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
			}
			s.errorResponse(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client identifier from RemoteAddr.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
