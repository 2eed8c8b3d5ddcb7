package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentmesh/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); err != domain.ErrCredentialNotFound {
		t.Errorf("Get missing = %v", err)
	}
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Errorf("Get = %q, %v", v, err)
	}
	ok, _ := s.Has(ctx, "k")
	if !ok {
		t.Error("Has = false")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != domain.ErrCredentialNotFound {
		t.Errorf("Get after delete = %v", err)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	ctx := context.Background()

	v := NewVaultStore(path, "open sesame", discard())
	if v.Disabled() {
		t.Fatal("vault unexpectedly disabled")
	}
	if err := v.Set(ctx, "api-key", "s3cret"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A new instance with the same passphrase reads the persisted secret.
	v2 := NewVaultStore(path, "open sesame", discard())
	got, err := v2.Get(ctx, "api-key")
	if err != nil || got != "s3cret" {
		t.Errorf("Get = %q, %v", got, err)
	}

	// Wrong passphrase cannot decrypt: that is an outage, not a missing key.
	v3 := NewVaultStore(path, "wrong", discard())
	if _, err := v3.Get(ctx, "api-key"); !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("wrong passphrase Get = %v, want provider error", err)
	}
}

func TestVaultHasDistinguishesOutageFromAbsence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	ctx := context.Background()

	v := NewVaultStore(path, "open sesame", discard())
	if err := v.Set(ctx, "api-key", "s3cret"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := v.Has(ctx, "missing")
	if ok || err != nil {
		t.Errorf("Has(missing) = %v, %v, want false, nil", ok, err)
	}

	v2 := NewVaultStore(path, "wrong", discard())
	ok, err = v2.Has(ctx, "api-key")
	if ok {
		t.Error("undecryptable entry reported present")
	}
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("Has = %v, want provider error", err)
	}
}

func TestVaultDisabledDegradesToNoop(t *testing.T) {
	v := NewVaultStore(filepath.Join(t.TempDir(), "vault.json"), "", discard())
	ctx := context.Background()

	if !v.Disabled() {
		t.Fatal("expected disabled vault")
	}
	if err := v.Set(ctx, "k", "v"); err != nil {
		t.Errorf("disabled Set = %v, want nil", err)
	}
	if _, err := v.Get(ctx, "k"); err != domain.ErrCredentialNotFound {
		t.Errorf("disabled Get = %v", err)
	}
	ok, _ := v.Has(ctx, "k")
	if ok {
		t.Error("disabled Has = true")
	}
}

func TestVaultFileDoesNotLeakPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v := NewVaultStore(path, "pass", discard())
	if err := v.Set(context.Background(), "k", "super-secret-value"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read vault: %v", err)
	}
	if strings.Contains(string(raw), "super-secret-value") {
		t.Error("plaintext secret present in vault file")
	}
}

func TestRegistry(t *testing.T) {
	mem := NewMemoryStore()
	reg := NewRegistry(mem)
	ctx := context.Background()

	if _, err := reg.Get("nope"); err == nil {
		t.Error("expected error for unregistered store")
	}
	got, err := reg.Get(domain.CredentialStoreMemory)
	if err != nil || got != mem {
		t.Errorf("Get = %v, %v", got, err)
	}

	mem.Set(ctx, "conn-1", "tok")
	ref := &domain.CredentialReference{
		ID:                "ref-1",
		CredentialStoreID: domain.CredentialStoreMemory,
		RetrievalParams:   map[string]any{"key": "conn-1"},
	}
	v, err := reg.Resolve(ctx, ref)
	if err != nil || v != "tok" {
		t.Errorf("Resolve = %q, %v", v, err)
	}

	// Without retrieval params the reference id is the key.
	mem.Set(ctx, "ref-2", "tok2")
	v, err = reg.Resolve(ctx, &domain.CredentialReference{
		ID: "ref-2", CredentialStoreID: domain.CredentialStoreMemory,
	})
	if err != nil || v != "tok2" {
		t.Errorf("Resolve by id = %q, %v", v, err)
	}
}

func TestNangoGetNormalizesAuthModes(t *testing.T) {
	cases := []struct {
		name  string
		creds map[string]any
		want  string
	}{
		{"api key", map[string]any{"type": "API_KEY", "api_key": "ak-1"}, "ak-1"},
		{"basic", map[string]any{"type": "BASIC", "username": "u", "password": "p"}, "u:p"},
		{"oauth2", map[string]any{"type": "OAUTH2", "access_token": "at-1"}, "at-1"},
		{"oauth2 cc", map[string]any{"type": "OAUTH2_CC", "token": "cc-1"}, "cc-1"},
		{"jwt", map[string]any{"type": "JWT", "token": "jwt-1"}, "jwt-1"},
		{"oauth1", map[string]any{"type": "OAUTH1", "oauth_token": "ot-1"}, "ot-1"},
		{"app", map[string]any{"type": "APP", "access_token": "ghs-1"}, "ghs-1"},
		{"tba", map[string]any{"type": "TBA", "token_id": "id", "token_secret": "sec"}, "id:sec"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
					t.Errorf("Authorization = %q", got)
				}
				json.NewEncoder(w).Encode(map[string]any{
					"connection_id": "conn-1",
					"credentials":   tc.creds,
				})
			}))
			defer srv.Close()

			s := NewNangoStore(srv.URL, "sk-test", 5*time.Second, discard())
			got, err := s.Get(context.Background(), "conn-1:github")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != tc.want {
				t.Errorf("token = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNangoOutageSurfacesAsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewNangoStore(srv.URL, "sk-test", time.Second, discard())
	if _, err := s.Get(context.Background(), "conn-1"); !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("Get = %v, want provider error", err)
	}
	ok, err := s.Has(context.Background(), "conn-1")
	if ok || !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("Has = %v, %v, want false, provider error", ok, err)
	}
}

func TestNangoMissingConnectionReadsAsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewNangoStore(srv.URL, "sk-test", time.Second, discard())
	if _, err := s.Get(context.Background(), "conn-1"); !errors.Is(err, domain.ErrCredentialNotFound) {
		t.Errorf("Get = %v, want ErrCredentialNotFound", err)
	}
	ok, err := s.Has(context.Background(), "conn-1")
	if ok || err != nil {
		t.Errorf("Has = %v, %v, want false, nil", ok, err)
	}
}

func TestNangoDeleteUnsupported(t *testing.T) {
	s := NewNangoStore("http://localhost:1", "sk", time.Second, discard())
	err := s.Delete(context.Background(), "conn-1")
	if err == nil || domain.ErrorCodeOf(err) != domain.ErrorCodeOf(domain.ErrUnsupported) {
		t.Errorf("Delete = %v, want unsupported", err)
	}
}

func TestAPIKeyPayloadLimit(t *testing.T) {
	if _, err := apiKeyPayload("short"); err != nil {
		t.Errorf("short payload rejected: %v", err)
	}
	huge := strings.Repeat("x", 2000)
	if _, err := apiKeyPayload(huge); err == nil {
		t.Error("oversized payload accepted")
	}
	// Fits only after shrinking to the minimal shape.
	boundary := strings.Repeat("x", maxNangoPayload-len(`{"apiKey":""}`))
	payload, err := apiKeyPayload(boundary)
	if err != nil {
		t.Fatalf("boundary payload rejected: %v", err)
	}
	if len(payload) > maxNangoPayload {
		t.Errorf("payload len %d exceeds limit", len(payload))
	}
}
