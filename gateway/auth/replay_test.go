package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestKeyStoreCapacityEviction(t *testing.T) {
	store := newKeyStore(time.Minute, 2)
	now := time.Unix(1_700_000_000, 0)
	if store.Seen("a", now) || store.Seen("b", now) {
		t.Fatalf("fresh keys must not be reported as seen")
	}
	if store.Seen("c", now) {
		t.Fatalf("fresh key c reported as seen")
	}
	if store.Contains("a", now) {
		t.Fatalf("expected oldest key to be evicted at capacity")
	}
	if !store.Contains("c", now) {
		t.Fatalf("expected newest key to remain")
	}
}

func TestKeyStoreExpiresOldEntries(t *testing.T) {
	store := newKeyStore(time.Minute, 16)
	now := time.Unix(1_700_000_000, 0)
	store.Add("a", now)
	if !store.Contains("a", now.Add(30*time.Second)) {
		t.Fatalf("expected key inside window")
	}
	if store.Contains("a", now.Add(2*time.Minute)) {
		t.Fatalf("expected key to expire")
	}
}

func TestReplayGuardRejectsDuplicates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	guard := NewReplayGuard(time.Minute, 0, func() time.Time { return now }, nil)
	ctx := context.Background()

	if err := guard.Check(ctx, "alice", "k-1"); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := guard.Check(ctx, "alice", "k-1"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if err := guard.Check(ctx, "bob", "k-1"); err != nil {
		t.Fatalf("keys are scoped per subject: %v", err)
	}
	if err := guard.Check(ctx, "alice", "a|b"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestReplayGuardSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency")
	now := time.Unix(1_717_787_717, 0).UTC()
	ctx := context.Background()

	backend, err := NewLevelDBPersistence(path)
	if err != nil {
		t.Fatalf("open persistence: %v", err)
	}
	guard := NewReplayGuard(5*time.Minute, 32, func() time.Time { return now }, backend)
	if err := guard.Check(ctx, "alice", "deposit-1"); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewLevelDBPersistence(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	restarted := NewReplayGuard(5*time.Minute, 32, func() time.Time { return now.Add(time.Second) }, reopened)
	if err := restarted.Hydrate(ctx, now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if err := restarted.Check(ctx, "alice", "deposit-1"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected duplicate after restart, got %v", err)
	}

	records, err := reopened.Recent(ctx, now.Add(-time.Minute))
	if err != nil || len(records) != 1 || records[0].Subject != "alice" || records[0].Key != "deposit-1" {
		t.Fatalf("unexpected records %+v err=%v", records, err)
	}
	if err := reopened.Prune(ctx, now.Add(time.Hour)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	records, _ = reopened.Recent(ctx, now.Add(-time.Hour))
	if len(records) != 0 {
		t.Fatalf("expected prune to remove records, have %d", len(records))
	}
}

func TestReplayGuardMiddleware(t *testing.T) {
	guard := NewReplayGuard(time.Minute, 0, nil, nil)
	handler := guard.Middleware(func(*http.Request) string { return "alice" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/deposits", nil)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send(""); code != http.StatusAccepted {
		t.Fatalf("requests without key must pass, got %d", code)
	}
	if code := send("x"); code != http.StatusAccepted {
		t.Fatalf("first keyed request must pass, got %d", code)
	}
	if code := send("x"); code != http.StatusConflict {
		t.Fatalf("expected 409 for replay, got %d", code)
	}
}

func TestIssueToken(t *testing.T) {
	now := time.Now()
	signed, err := IssueToken("s3cret", TokenRequest{Subject: "yld1abc", Scopes: []string{"aggregator:write"}, Issuer: "yieldctl", TTL: time.Minute}, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parsed, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "yld1abc" || claims["scope"] != "aggregator:write" || claims["iss"] != "yieldctl" {
		t.Fatalf("unexpected claims %v", claims)
	}
	if _, err := IssueToken("", TokenRequest{Subject: "x"}, now); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestLevelDBPersistenceRecentRoundTrip(t *testing.T) {
	backend, err := NewLevelDBPersistence(filepath.Join(t.TempDir(), "keys"))
	if err != nil {
		t.Fatalf("open persistence: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	ctx := context.Background()
	base := time.Unix(1_717_787_717, 0).UTC()

	seen, err := backend.Ensure(ctx, Record{Subject: "yield1alice", Key: "withdraw:7", ObservedAt: base})
	if err != nil || seen {
		t.Fatalf("first ensure: seen=%v err=%v", seen, err)
	}
	if _, err := backend.Ensure(ctx, Record{Subject: "yield1bob", Key: "claim-1", ObservedAt: base.Add(time.Second)}); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	seen, err = backend.Ensure(ctx, Record{Subject: "yield1alice", Key: "withdraw:7", ObservedAt: base.Add(2 * time.Second)})
	if err != nil || !seen {
		t.Fatalf("repeat ensure: seen=%v err=%v", seen, err)
	}

	records, err := backend.Recent(ctx, base)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, have %+v", records)
	}
	if records[0].Subject != "yield1bob" || records[0].Key != "claim-1" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[1].Subject != "yield1alice" || records[1].Key != "withdraw:7" {
		t.Fatalf("unexpected second record %+v", records[1])
	}
	if !records[1].ObservedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("expected refreshed observation time, have %s", records[1].ObservedAt)
	}
}
