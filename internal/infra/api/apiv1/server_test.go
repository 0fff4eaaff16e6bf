//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"jesusia-companion/internal/domain/model"
	aiadapter "jesusia-companion/internal/infra/adapters/ai"
	apiv1 "jesusia-companion/internal/infra/api/apiv1"
	"jesusia-companion/internal/infra/i18n"
	"jesusia-companion/internal/infra/memstore"
	"jesusia-companion/internal/usecase"
)

//
// -------------------- test helpers --------------------
//

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type countingLimiter struct {
	mu    sync.Mutex
	seen  map[string]int
	limit int
}

func (c *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key]++
	return c.seen[key] <= limit, nil
}

const testServiceKey = "billing-backend-key"

func newServer(t *testing.T, limiter apiv1.RateLimiter, rateLimit int) *chi.Mux {
	t.Helper()
	return newServerWith(t, func(d *apiv1.Deps) {
		d.Limiter = limiter
		d.ChatRateLimit = rateLimit
	})
}

func newServerWith(t *testing.T, configure func(*apiv1.Deps)) *chi.Mux {
	t.Helper()
	log := newLogger()
	store := memstore.New()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "pt")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	noop := aiadapter.NewNoopAIAdapter(log)

	ledger := usecase.NewLedgerUseCase(store, log)
	sessions := usecase.NewRolloverUseCase(store, tr, log)
	chat := usecase.NewChatUseCase(ledger, sessions, noop, noop, tr, usecase.ChatConfig{}, log)
	devs := usecase.NewDevotionalUseCase(store, log)

	deps := apiv1.Deps{
		Ledger:      ledger,
		Sessions:    sessions,
		Chat:        chat,
		Devotionals: devs,
		ServiceKey:  testServiceKey,
	}
	if configure != nil {
		configure(&deps)
	}
	srv := apiv1.NewServer(deps, nil)

	r := chi.NewRouter()
	apiv1.RegisterAPIV1(r, srv)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func doService(r http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Service-Key", key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v body=%s", err, rec.Body.String())
	}
	return v
}

//
// -------------------- tests --------------------
//

func TestPlans_List(t *testing.T) {
	r := newServer(t, nil, 0)

	rec := do(r, http.MethodGet, "/api/v1/plans", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Items []model.PlanCatalogEntry `json:"items"`
	}](t, rec)
	if len(body.Items) != 3 || body.Items[2].Tier != model.PlanPremium {
		t.Fatalf("unexpected catalog %+v", body.Items)
	}
}

func TestCredits_ConsumeUntilPaymentRequired(t *testing.T) {
	r := newServer(t, nil, 0)

	rec := do(r, http.MethodGet, "/api/v1/credits", "")
	if acc := decode[model.CreditAccount](t, rec); acc.Credits != 5 || acc.Plan != model.PlanFree {
		t.Fatalf("unexpected default account %+v", acc)
	}

	for i := 0; i < 5; i++ {
		if rec := do(r, http.MethodPost, "/api/v1/credits/consume", ""); rec.Code != http.StatusOK {
			t.Fatalf("consume %d: got %d", i, rec.Code)
		}
	}
	rec = do(r, http.MethodPost, "/api/v1/credits/consume", "")
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("want 402, got %d, body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/api/v1/credits/ad-reward", "")
	if acc := decode[model.CreditAccount](t, rec); acc.Credits != 2 {
		t.Fatalf("ad reward should add 2 credits, got %+v", acc)
	}
}

func TestCredits_Grant_AllPaths(t *testing.T) {
	const path = "/api/v1/service/users/ana/credits/grant"

	t.Run("200 granted", func(t *testing.T) {
		r := newServer(t, nil, 0)
		rec := doService(r, http.MethodPost, path, `{"amount":10}`, testServiceKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, body=%s", rec.Code, rec.Body.String())
		}
		if acc := decode[model.CreditAccount](t, rec); acc.Credits != 15 {
			t.Fatalf("want 15 credits, got %d", acc.Credits)
		}
	})

	t.Run("422 non-positive amount", func(t *testing.T) {
		r := newServer(t, nil, 0)
		rec := doService(r, http.MethodPost, path, `{"amount":0}`, testServiceKey)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("400 malformed body", func(t *testing.T) {
		r := newServer(t, nil, 0)
		rec := doService(r, http.MethodPost, path, `{"amount":`, testServiceKey)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("401 without service key", func(t *testing.T) {
		r := newServer(t, nil, 0)
		if rec := doService(r, http.MethodPost, path, `{"amount":100000}`, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("403 wrong service key", func(t *testing.T) {
		r := newServer(t, nil, 0)
		if rec := doService(r, http.MethodPost, path, `{"amount":100000}`, "guess"); rec.Code != http.StatusForbidden {
			t.Fatalf("want 403, got %d", rec.Code)
		}
	})

	t.Run("403 when no service key is configured", func(t *testing.T) {
		r := newServerWith(t, func(d *apiv1.Deps) { d.ServiceKey = "" })
		if rec := doService(r, http.MethodPost, path, `{"amount":10}`, ""); rec.Code != http.StatusForbidden {
			t.Fatalf("want 403, got %d", rec.Code)
		}
	})

	t.Run("clients cannot mint credits", func(t *testing.T) {
		r := newServer(t, nil, 0)
		if rec := do(r, http.MethodPost, "/api/v1/credits/grant", `{"amount":100000}`); rec.Code != http.StatusNotFound {
			t.Fatalf("want 404 for the client grant route, got %d", rec.Code)
		}
		rec := do(r, http.MethodGet, "/api/v1/credits", "")
		if acc := decode[model.CreditAccount](t, rec); acc.Credits != 5 {
			t.Fatalf("balance changed without authorisation: %+v", acc)
		}
	})
}

func TestCredits_AdRewardIsRateLimited(t *testing.T) {
	lim := &countingLimiter{seen: map[string]int{}}
	r := newServerWith(t, func(d *apiv1.Deps) {
		d.Limiter = lim
		d.AdRewardLimit = 1
	})

	rec := do(r, http.MethodPost, "/api/v1/credits/ad-reward", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("first reward: got %d", rec.Code)
	}
	if acc := decode[model.CreditAccount](t, rec); acc.Credits != 7 {
		t.Fatalf("want 7 credits, got %d", acc.Credits)
	}
	if rec := do(r, http.MethodPost, "/api/v1/credits/ad-reward", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", rec.Code)
	}
	if lim.seen["rate_limit:anonymous:ad_reward"] != 2 {
		t.Errorf("unexpected limiter keys %v", lim.seen)
	}
	rec = do(r, http.MethodGet, "/api/v1/credits", "")
	if acc := decode[model.CreditAccount](t, rec); acc.Credits != 7 {
		t.Fatalf("a refused reward must not grant, got %d", acc.Credits)
	}
}

func TestPlan_Update(t *testing.T) {
	r := newServer(t, nil, 0)
	const path = "/api/v1/service/users/ana/plan"

	rec := doService(r, http.MethodPut, path, `{"plan":"premium","billing_cycle":"annual"}`, testServiceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", rec.Code, rec.Body.String())
	}
	acc := decode[model.CreditAccount](t, rec)
	if acc.Credits != model.UnlimitedCredits || acc.SubscriptionEndDate == nil || acc.BillingCycle != model.BillingAnnual {
		t.Fatalf("unexpected premium account %+v", acc)
	}

	if rec := doService(r, http.MethodPut, path, `{"plan":"gold"}`, testServiceKey); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422 for unknown plan, got %d", rec.Code)
	}
	if rec := doService(r, http.MethodPut, path, `{"plan":"premium"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without service key, got %d", rec.Code)
	}

	// the client route is gone and the caller's namespace is untouched
	if rec := do(r, http.MethodPut, "/api/v1/plan", `{"plan":"premium","billing_cycle":"annual"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("want 404 for the client plan route, got %d", rec.Code)
	}
	rec = do(r, http.MethodGet, "/api/v1/credits", "")
	if acc := decode[model.CreditAccount](t, rec); acc.Plan != model.PlanFree || acc.Credits != 5 {
		t.Fatalf("anonymous account changed: %+v", acc)
	}
}

func TestSession_OpenCloseHistory(t *testing.T) {
	r := newServer(t, nil, 0)

	rec := do(r, http.MethodPost, "/api/v1/session/open", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("open: got %d", rec.Code)
	}
	open := decode[usecase.OpenResult](t, rec)
	if !open.StartedNew || len(open.Session.Messages) != 1 {
		t.Fatalf("expected a fresh greeting, got %+v", open)
	}

	if rec := do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":"Quem é Jesus?"}`); rec.Code != http.StatusOK {
		t.Fatalf("send: got %d, body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/api/v1/session/close", "")
	closed := decode[struct {
		Archived *model.ChatHistoryEntry `json:"archived"`
	}](t, rec)
	if closed.Archived == nil || closed.Archived.Title != "Quem é Jesus?" {
		t.Fatalf("expected an archived entry, got %+v", closed.Archived)
	}

	rec = do(r, http.MethodGet, "/api/v1/session/history", "")
	hist := decode[struct {
		Items []model.ChatHistoryEntry `json:"items"`
	}](t, rec)
	if len(hist.Items) != 1 {
		t.Fatalf("want 1 history entry, got %d", len(hist.Items))
	}

	rec = do(r, http.MethodGet, "/api/v1/session/history/"+hist.Items[0].ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("archived: got %d, body=%s", rec.Code, rec.Body.String())
	}
	if arch := decode[model.ChatSession](t, rec); len(arch.Messages) != 3 || arch.Messages[1].Text != "Quem é Jesus?" {
		t.Fatalf("unexpected archived conversation %+v", arch)
	}
	if rec := do(r, http.MethodGet, "/api/v1/session/history/user_7_chat_01HZX3M8Q4N2F7TGR5YV9KJ6WE", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("want 404 for another namespace's archive, got %d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/api/v1/session/open", "")
	if open := decode[usecase.OpenResult](t, rec); !open.StartedNew || open.State != model.StateClosedSession {
		t.Fatalf("expected a new chat after close, got %+v", open)
	}

	if rec := do(r, http.MethodPost, "/api/v1/session/sign-out", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("sign-out: want 204, got %d", rec.Code)
	}
	rec = do(r, http.MethodGet, "/api/v1/session/history", "")
	if hist := decode[struct {
		Items []model.ChatHistoryEntry `json:"items"`
	}](t, rec); len(hist.Items) != 0 {
		t.Fatalf("history should be empty after sign-out, got %d", len(hist.Items))
	}
	if rec := do(r, http.MethodGet, "/api/v1/session/history/"+closed.Archived.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("archive should be gone after sign-out, got %d", rec.Code)
	}
}

func TestChat_Messages(t *testing.T) {
	t.Run("200 with canned fallback", func(t *testing.T) {
		r := newServer(t, nil, 0)
		rec := do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":"Quem é Jesus?"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, body=%s", rec.Code, rec.Body.String())
		}
		res := decode[usecase.ChatReply](t, rec)
		if !res.Fallback || !strings.Contains(res.Reply.Text, "Jesus Cristo") || res.Account.Credits != 4 {
			t.Fatalf("unexpected reply %+v", res)
		}
	})

	t.Run("422 empty text", func(t *testing.T) {
		r := newServer(t, nil, 0)
		if rec := do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":""}`); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d", rec.Code)
		}
	})

	t.Run("400 blank text", func(t *testing.T) {
		r := newServer(t, nil, 0)
		if rec := do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":"   "}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("402 without credits", func(t *testing.T) {
		r := newServer(t, nil, 0)
		for i := 0; i < 5; i++ {
			do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":"Olá"}`)
		}
		if rec := do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":"Olá"}`); rec.Code != http.StatusPaymentRequired {
			t.Fatalf("want 402, got %d", rec.Code)
		}
	})

	t.Run("429 rate limited", func(t *testing.T) {
		lim := &countingLimiter{seen: map[string]int{}}
		r := newServer(t, lim, 2)
		for i := 0; i < 2; i++ {
			if rec := do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":"Olá"}`); rec.Code != http.StatusOK {
				t.Fatalf("send %d: got %d", i, rec.Code)
			}
		}
		if rec := do(r, http.MethodPost, "/api/v1/chat/messages", `{"text":"Olá"}`); rec.Code != http.StatusTooManyRequests {
			t.Fatalf("want 429, got %d", rec.Code)
		}
		if lim.seen["rate_limit:anonymous:chat"] != 3 {
			t.Errorf("unexpected limiter keys %v", lim.seen)
		}
	})
}

func TestChat_Transcriptions(t *testing.T) {
	r := newServer(t, nil, 0)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "voice.m4a")
	_, _ = fw.Write([]byte("fake audio"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/transcriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", rec.Code, rec.Body.String())
	}
	res := decode[usecase.Transcription](t, rec)
	if !res.Fallback || res.Text == "" {
		t.Fatalf("expected a stand-in transcript, got %+v", res)
	}

	if rec := do(r, http.MethodPost, "/api/v1/chat/transcriptions", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 without multipart, got %d", rec.Code)
	}
}

func TestDevotionals_AllPaths(t *testing.T) {
	r := newServer(t, nil, 0)

	rec := do(r, http.MethodPost, "/api/v1/devotionals", `{"content":"Salmo 23"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d, body=%s", rec.Code, rec.Body.String())
	}
	saved := decode[model.Devotional](t, rec)

	rec = do(r, http.MethodGet, "/api/v1/devotionals", "")
	list := decode[struct {
		Items []model.Devotional `json:"items"`
	}](t, rec)
	if len(list.Items) != 1 || list.Items[0].ID != saved.ID {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	if rec := do(r, http.MethodDelete, "/api/v1/devotionals/"+saved.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}
	if rec := do(r, http.MethodDelete, "/api/v1/devotionals/"+saved.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/v1/devotionals", `{"content":"x","extra":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for unknown fields, got %d", rec.Code)
	}
}
