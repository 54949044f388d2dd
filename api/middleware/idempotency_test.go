package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
)

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.values[key] = value.(string)
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func newGuardedHandler(store *fakeStore, calls *int, status int) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})
	return Idempotency(store, time.Hour, nil)(inner)
}

func postWithKey(handler http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := newGuardedHandler(store, &calls, http.StatusCreated)

	first := postWithKey(handler, "key-1", `{"a":1}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", first.Code)
	}
	second := postWithKey(handler, "key-1", `{"a":1}`)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d, want 201", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body %q differs from original %q", second.Body.String(), first.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := newGuardedHandler(store, &calls, http.StatusOK)

	postWithKey(handler, "key-1", `{"a":1}`)
	resp := postWithKey(handler, "key-1", `{"a":2}`)

	if resp.Code == http.StatusOK {
		t.Fatalf("reused key with different body must not succeed, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "IDEMPOTENCY_KEY_REUSED") {
		t.Fatalf("expected IDEMPOTENCY_KEY_REUSED in body, got %s", resp.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestIdempotencyInFlightDuplicateConflicts(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := newGuardedHandler(store, &calls, http.StatusOK)

	// Simulate a pending reservation left by a request still in flight.
	key := store.IdempotencyKey("|POST|/api/v1/orders", "key-busy")
	store.values[key] = `{"state":"pending","request_hash":"` + hashBody([]byte(`{"a":1}`)) + `"}`

	resp := postWithKey(handler, "key-busy", `{"a":1}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("in-flight duplicate status = %d, want 409", resp.Code)
	}
	if calls != 0 {
		t.Fatalf("handler ran %d times, want 0", calls)
	}
}

func TestIdempotencyMissingHeaderProceeds(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := newGuardedHandler(store, &calls, http.StatusOK)

	postWithKey(handler, "", `{"a":1}`)
	postWithKey(handler, "", `{"a":1}`)

	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2 without a key", calls)
	}
	if len(store.values) != 0 {
		t.Fatalf("store holds %d records for unguarded requests", len(store.values))
	}
}

func TestIdempotencyReleasesReservationOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := newGuardedHandler(store, &calls, http.StatusInternalServerError)

	postWithKey(handler, "key-err", `{"a":1}`)
	if len(store.values) != 0 {
		t.Fatalf("reservation survived a server error: %v", store.values)
	}

	postWithKey(handler, "key-err", `{"a":1}`)
	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2 after released reservation", calls)
	}
}

func TestIdempotencyScopesPerEndpointWhenRouterMounted(t *testing.T) {
	store := newFakeStore()
	approveCalls := 0
	payCalls := 0

	// Mounted the way the api router does it: Use on a subrouter, before
	// the order routes have matched.
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Idempotency(store, time.Hour, nil))
		r.Route("/orders/{orderId}/settlement", func(r chi.Router) {
			r.Post("/approve", func(w http.ResponseWriter, req *http.Request) {
				approveCalls++
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data":{"approved":"` + chi.URLParam(req, "orderId") + `"}}`))
			})
			r.Post("/pay", func(w http.ResponseWriter, req *http.Request) {
				payCalls++
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data":{"paid":"` + chi.URLParam(req, "orderId") + `"}}`))
			})
		})
	})

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(""))
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	orderA := "11111111-1111-1111-1111-111111111111"
	orderB := "22222222-2222-2222-2222-222222222222"

	first := send("/api/v1/orders/" + orderA + "/settlement/approve")
	second := send("/api/v1/orders/" + orderB + "/settlement/pay")

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d/%d, want 200/200", first.Code, second.Code)
	}
	if approveCalls != 1 || payCalls != 1 {
		t.Fatalf("approve/pay ran %d/%d times, want 1/1", approveCalls, payCalls)
	}
	if strings.Contains(second.Body.String(), "approved") {
		t.Fatalf("pay response replayed the approve response: %s", second.Body.String())
	}

	// Same key against a different order on the same endpoint is its own
	// scope too.
	third := send("/api/v1/orders/" + orderB + "/settlement/approve")
	if third.Code != http.StatusOK || approveCalls != 2 {
		t.Fatalf("approve for another order did not execute (status=%d, calls=%d)", third.Code, approveCalls)
	}
}

func TestIdempotencyIgnoresReads(t *testing.T) {
	store := newFakeStore()
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	handler := Idempotency(store, time.Hour, nil)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Idempotency-Key", "key-get")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if calls != 1 || len(store.values) != 0 {
		t.Fatalf("GET should bypass the guard (calls=%d, stored=%d)", calls, len(store.values))
	}
}
