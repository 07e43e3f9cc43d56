// Package api exposes the onboarding service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/onboard/internal/callback"
	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/metrics"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/onboarding"
	"github.com/sells-group/onboard/internal/validate"
)

// UserHeader carries the authenticated user id, set by the fronting proxy.
const UserHeader = "X-User-ID"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Service is the onboarding surface served by the API.
type Service interface {
	CreateCompany(ctx context.Context, userID string, company onboarding.CompanyInput, initial onboarding.InitialInput) (*onboarding.Created, error)
	Initiate(ctx context.Context, userID string, req enrich.InitiateRequest) (string, error)
	Status(ctx context.Context, jobID string) (model.JobStatusReport, error)
	SaveProgress(ctx context.Context, userID string, step model.Step, section json.RawMessage) error
	LoadProgress(ctx context.Context, userID string) (*model.Progress, error)
	Complete(ctx context.Context, userID string, final model.WizardFormState) error
}

// CallbackReceiver applies worker completion notices.
type CallbackReceiver interface {
	Receive(ctx context.Context, n model.CallbackNotice) (callback.Ack, error)
}

// Server routes onboarding requests.
type Server struct {
	svc            Service
	callbacks      CallbackReceiver
	callbackSecret string
	corsOrigins    []string
	validate       *validate.Validator
}

// Option configures a Server.
type Option func(*Server)

// WithCallbackSecret requires worker callbacks to carry a valid
// HMAC-SHA256 signature of the body.
func WithCallbackSecret(secret string) Option {
	return func(s *Server) { s.callbackSecret = secret }
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer creates a server.
func NewServer(svc Service, callbacks CallbackReceiver, opts ...Option) *Server {
	s := &Server{
		svc:         svc,
		callbacks:   callbacks,
		corsOrigins: []string{"*"},
		validate:    validate.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		metrics.HTTPMiddleware,
		cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", UserHeader, callback.SignatureHeader},
			MaxAge:         300,
		}),
		chiMiddleware.RequestID,
		chiMiddleware.RealIP,
		requestLogger,
		chiMiddleware.Recoverer,
		chiMiddleware.Timeout(30*time.Second),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/onboarding", func(r chi.Router) {
		// The worker authenticates by signature, not by user.
		r.Post("/callback", s.handleCallback)
		r.Get("/status", s.handleStatus)
		r.Get("/options", handleOptions)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/create-company", s.handleCreateCompany)
			r.Post("/initiate", s.handleInitiate)
			r.Post("/save-progress", s.handleSaveProgress)
			r.Get("/load-progress", s.handleLoadProgress)
			r.Post("/complete", s.handleComplete)
		})
	})
	return r
}
