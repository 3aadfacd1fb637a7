package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lukasbauer/fishvoice/internal/eventlog"
	"github.com/lukasbauer/fishvoice/internal/fishaudio"
	"github.com/lukasbauer/fishvoice/internal/store"
)

type RouterConfig struct {
	// Fish Audio API
	FishAPIKey       string
	FishBaseURL      string // Override for tests
	FishLiveEndpoint string // Override for tests
	FishModel        string

	// Voice defaults (overridable per request)
	TTSReferenceID string
	TTSFormat      string
	TTSLatency     string
	TTSChunkLength int

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Gateway keys accepted by POST /auth/token
	GatewayKeys []string

	// Shared HTTP client with connection pooling for Fish Audio calls
	FishHTTPClient *http.Client
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog *eventlog.Logger
	fish     *fishaudio.Client
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger) http.Handler {
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		fish: fishaudio.NewClient(fishaudio.Config{
			APIKey:     cfg.FishAPIKey,
			BaseURL:    cfg.FishBaseURL,
			Model:      cfg.FishModel,
			HTTPClient: cfg.FishHTTPClient,
		}),
		mux: http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Auth endpoint (public, gateway key required in body)
	r.mux.HandleFunc("POST /auth/token", r.handleIssueToken)

	// Speech endpoints
	r.mux.HandleFunc("POST /api/tts", r.withAuth(r.handleTTS))
	r.mux.HandleFunc("POST /api/asr", r.withAuth(r.handleASR))

	// Live streaming TTS relay (token passed as query param by ws clients)
	r.mux.HandleFunc("GET /live", r.withAuth(r.handleLiveWS))

	// Voice model management
	r.mux.HandleFunc("GET /api/models", r.withAuth(r.handleListModels))
	r.mux.HandleFunc("POST /api/models", r.withAuth(r.handleCreateModel))
	r.mux.HandleFunc("GET /api/models/{id}", r.withAuth(r.handleGetModel))
	r.mux.HandleFunc("DELETE /api/models/{id}", r.withAuth(r.handleDeleteModel))

	// Account
	r.mux.HandleFunc("GET /api/credits", r.withAuth(r.handleGetCredits))
	r.mux.HandleFunc("GET /api/usage", r.withAuth(r.handleGetUsage))
	r.mux.HandleFunc("GET /api/usage/{id}/events", r.withAuth(r.handleGetSessionEvents))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
