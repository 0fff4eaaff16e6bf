package apiv1

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/domain/ports/adapter"
	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/infra/metrics"
	"jesusia-companion/internal/infra/redis"
)

type grantRequest struct {
	Amount int `json:"amount" validate:"required,gt=0,lte=100000"`
}

type planRequest struct {
	Plan         string `json:"plan" validate:"required,oneof=free basic premium"`
	BillingCycle string `json:"billing_cycle" validate:"omitempty,oneof=monthly annual"`
}

type messageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type devotionalRequest struct {
	Content string `json:"content" validate:"required,max=20000"`
}

type closeResponse struct {
	Archived *model.ChatHistoryEntry `json:"archived"`
}

func userID(r *http.Request) string { return logging.UserID(r.Context()) }

// ----- credits -----

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listBody[model.PlanCatalogEntry]{Items: s.deps.Ledger.Catalog()})
}

func (s *Server) getCredits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Ledger.Load(r.Context(), userID(r)))
}

func (s *Server) consumeCredit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.deps.Ledger.ConsumeOne(ctx, userID(r)) {
		s.fail(w, r, domain.ErrInsufficientCredits)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Ledger.Snapshot(ctx, userID(r)))
}

// pathUser is the user a /service route acts on.
func pathUser(r *http.Request) string { return strings.TrimSpace(chi.URLParam(r, "userID")) }

func (s *Server) grantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.deps.Ledger.GrantCredits(r.Context(), pathUser(r), req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// rewardAd is called by the client once a rewarded ad finished playing.
func (s *Server) rewardAd(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, "ad_reward", s.deps.AdRewardLimit, s.deps.AdRewardWindow) {
		writeErr(w, http.StatusTooManyRequests, "too many ad rewards, try again later")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Ledger.RewardAd(r.Context(), userID(r)))
}

func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.deps.Ledger.UpdatePlan(r.Context(), pathUser(r),
		model.PlanTier(req.Plan), s.now(), model.BillingCycle(req.BillingCycle))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// ----- sessions -----

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Sessions.Open(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	entry := s.deps.Sessions.CloseSession(r.Context(), userID(r))
	writeJSON(w, http.StatusOK, closeResponse{Archived: entry})
}

// signOut drops the conversation data of the caller's namespace.
func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Clear(r.Context(), userID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.CurrentSession(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Sessions.History(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody[model.ChatHistoryEntry]{Items: items})
}

func (s *Server) archivedSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Archived(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ----- chat -----

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.allow(r, "chat", s.deps.ChatRateLimit, s.deps.ChatRateWindow) {
		writeErr(w, http.StatusTooManyRequests, "too many messages, slow down")
		return
	}
	res, err := s.deps.Chat.SendMessage(r.Context(), userID(r), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.deps.MaxUploadBytes); err != nil {
		writeErr(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	res, err := s.deps.Chat.Transcribe(r.Context(), userID(r), adapter.Audio{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// allow applies the per-namespace limit of action. It fails open when the
// limiter errors.
func (s *Server) allow(r *http.Request, action string, limit int, window time.Duration) bool {
	if s.deps.Limiter == nil || limit <= 0 {
		return true
	}
	ns := model.NewNamespace(userID(r)).String()
	ok, err := s.deps.Limiter.Allow(r.Context(), redis.UserActionKey(ns, action), limit, window)
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimited()
		logging.With(r.Context(), s.log).Debug().Str("action", action).Msg("rate limited")
	}
	return ok
}

// ----- devotionals -----

func (s *Server) listDevotionals(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Devotionals.List(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody[model.Devotional]{Items: items})
}

func (s *Server) saveDevotional(w http.ResponseWriter, r *http.Request) {
	var req devotionalRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.deps.Devotionals.Save(r.Context(), userID(r), req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) deleteDevotional(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeErr(w, http.StatusBadRequest, "missing id")
		return
	}
	if err := s.deps.Devotionals.Delete(r.Context(), userID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
