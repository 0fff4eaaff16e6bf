package apiv1

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/usecase"
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Deps struct {
	Ledger      usecase.LedgerUseCase
	Sessions    usecase.RolloverUseCase
	Chat        usecase.ChatUseCase
	Devotionals usecase.DevotionalUseCase

	// Limiter is optional; chat sends and ad rewards are unlimited without it.
	Limiter        RateLimiter
	ChatRateLimit  int
	ChatRateWindow time.Duration
	AdRewardLimit  int
	AdRewardWindow time.Duration
	MaxUploadBytes int64

	// ServiceKey authorises the billing backend on /service routes.
	// Empty disables them.
	ServiceKey string
}

type Server struct {
	deps     Deps
	validate *validator.Validate
	now      func() time.Time
	log      *zerolog.Logger
}

func NewServer(deps Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if deps.ChatRateWindow <= 0 {
		deps.ChatRateWindow = time.Minute
	}
	if deps.AdRewardWindow <= 0 {
		deps.AdRewardWindow = time.Hour
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 25 << 20
	}
	return &Server{
		deps:     deps,
		validate: validator.New(),
		now:      time.Now,
		log:      logger,
	}
}

// RegisterAPIV1 mounts every /api/v1 route on r. Client routes act on the
// caller's namespace; /service routes name the user in the path and need
// the service key.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.listPlans)

		r.Get("/credits", s.getCredits)
		r.Post("/credits/consume", s.consumeCredit)
		r.Post("/credits/ad-reward", s.rewardAd)

		r.Post("/session/open", s.openSession)
		r.Post("/session/close", s.closeSession)
		r.Post("/session/sign-out", s.signOut)
		r.Get("/session/current", s.currentSession)
		r.Get("/session/history", s.sessionHistory)
		r.Get("/session/history/{id}", s.archivedSession)

		r.Post("/chat/messages", s.sendMessage)
		r.Post("/chat/transcriptions", s.transcribe)

		r.Get("/devotionals", s.listDevotionals)
		r.Post("/devotionals", s.saveDevotional)
		r.Delete("/devotionals/{id}", s.deleteDevotional)

		r.Route("/service/users/{userID}", func(r chi.Router) {
			r.Use(s.serviceAuth)
			r.Post("/credits/grant", s.grantCredits)
			r.Put("/plan", s.updatePlan)
		})
	})
}

// serviceAuth checks the X-Service-Key header against the configured key.
func (s *Server) serviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.ServiceKey == "" {
			logging.With(r.Context(), s.log).Error().Msg("service key is not configured")
			writeErr(w, http.StatusForbidden, "forbidden")
			return
		}
		key := strings.TrimSpace(r.Header.Get("X-Service-Key"))
		if key == "" {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.deps.ServiceKey)) != 1 {
			writeErr(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
