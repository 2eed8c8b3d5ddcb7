package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"agentmesh/internal/domain"
)

// Nango auth modes, matching the broker's connection credential types.
const (
	authModeAPIKey   = "API_KEY"
	authModeApp      = "APP"
	authModeBasic    = "BASIC"
	authModeCustom   = "CUSTOM"
	authModeJWT      = "JWT"
	authModeOAuth1   = "OAUTH1"
	authModeOAuth2   = "OAUTH2"
	authModeOAuth2CC = "OAUTH2_CC"
	authModeTBA      = "TBA"
)

// maxNangoPayload is the broker's hard limit on stored credential payloads.
const maxNangoPayload = 1024

// NangoStore retrieves live provider credentials from a Nango instance.
// Keys are connection ids, optionally suffixed ":provider_config_key".
// Reads normalize the per-auth-mode credential shape into a single token
// string; failed lookups surface as not-found instead of transport errors.
type NangoStore struct {
	host      string
	secretKey string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*nangoConnection]
	logger    *slog.Logger
}

var _ domain.CredentialStore = (*NangoStore)(nil)

type nangoConnection struct {
	ConnectionID      string          `json:"connection_id"`
	ProviderConfigKey string          `json:"provider_config_key"`
	Credentials       nangoCredential `json:"credentials"`
}

type nangoCredential struct {
	Type         string          `json:"type"`
	AccessToken  string          `json:"access_token"`
	Token        string          `json:"token"`
	APIKey       string          `json:"api_key"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	OAuthToken   string          `json:"oauth_token"`
	OAuthSecret  string          `json:"oauth_token_secret"`
	TokenID      string          `json:"token_id"`
	TokenSecret  string          `json:"token_secret"`
	Raw          json.RawMessage `json:"raw"`
	ExpiresAt    string          `json:"expires_at"`
}

// NewNangoStore creates a Nango-backed credential store.
func NewNangoStore(host, secretKey string, timeout time.Duration, logger *slog.Logger) *NangoStore {
	s := &NangoStore{
		host:      strings.TrimRight(host, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[*nangoConnection](gobreaker.Settings{
		Name:        "nango",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return s
}

func (s *NangoStore) ID() string { return domain.CredentialStoreNango }

// Get fetches the connection's live credentials and normalizes them to a
// token string per auth mode. An unknown connection reads as not-found;
// transport failures, an open breaker, and unusable credential shapes
// surface as provider errors so callers can tell outage from absence.
func (s *NangoStore) Get(ctx context.Context, key string) (string, error) {
	connectionID, providerKey := splitNangoKey(key)

	conn, err := s.breaker.Execute(func() (*nangoConnection, error) {
		return s.fetchConnection(ctx, connectionID, providerKey)
	})
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return "", domain.ErrCredentialNotFound
		}
		s.logger.Warn("nango credential fetch failed",
			"connection_id", connectionID, "error", err)
		return "", domain.NewSubSystemError("credstore", "NangoStore.Get",
			domain.ErrProviderError, err.Error())
	}

	token, err := normalizeCredential(conn.Credentials)
	if err != nil {
		s.logger.Warn("nango credential unusable",
			"connection_id", connectionID, "auth_mode", conn.Credentials.Type, "error", err)
		return "", domain.NewSubSystemError("credstore", "NangoStore.Get",
			domain.ErrProviderError, err.Error())
	}
	return token, nil
}

// Set writes an API-key credential back to the broker. The payload must fit
// the broker's storage limit; oversized values are rejected after dropping
// everything but the key itself.
func (s *NangoStore) Set(ctx context.Context, key, value string) error {
	connectionID, providerKey := splitNangoKey(key)

	payload, err := apiKeyPayload(value)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/connection/%s/metadata?provider_config_key=%s",
		s.host, url.PathEscape(connectionID), url.QueryEscape(providerKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(payload)))
	if err != nil {
		return domain.WrapOp("NangoStore.Set", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.NewSubSystemError("credstore", "NangoStore.Set", domain.ErrProviderError, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.NewSubSystemError("credstore", "NangoStore.Set", domain.ErrProviderError,
			fmt.Sprintf("status %d", resp.StatusCode))
	}
	return nil
}

// Has reports whether the connection resolves to a usable credential.
// Broker outages surface as errors rather than absence.
func (s *NangoStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrCredentialNotFound) {
		return false, nil
	}
	return false, err
}

// Delete is not supported: connections are managed in the Nango dashboard.
func (s *NangoStore) Delete(context.Context, string) error {
	return domain.NewSubSystemError("credstore", "NangoStore.Delete", domain.ErrUnsupported,
		"nango connections are managed by the broker")
}

func (s *NangoStore) fetchConnection(ctx context.Context, connectionID, providerKey string) (*nangoConnection, error) {
	u := s.host + "/connection/" + url.PathEscape(connectionID)
	if providerKey != "" {
		u += "?provider_config_key=" + url.QueryEscape(providerKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrCredentialNotFound
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nango status %d: %s", resp.StatusCode, body)
	}

	var conn nangoConnection
	if err := json.NewDecoder(resp.Body).Decode(&conn); err != nil {
		return nil, fmt.Errorf("decode connection: %w", err)
	}
	return &conn, nil
}

// normalizeCredential flattens the per-auth-mode credential shape into the
// one token string callers attach to outbound requests.
func normalizeCredential(c nangoCredential) (string, error) {
	switch strings.ToUpper(c.Type) {
	case authModeAPIKey:
		if c.APIKey == "" {
			return "", fmt.Errorf("api key missing")
		}
		return c.APIKey, nil
	case authModeBasic:
		if c.Username == "" {
			return "", fmt.Errorf("username missing")
		}
		return c.Username + ":" + c.Password, nil
	case authModeOAuth2, authModeApp:
		if c.AccessToken == "" {
			return "", fmt.Errorf("access token missing")
		}
		return c.AccessToken, nil
	case authModeOAuth2CC, authModeJWT:
		if c.Token != "" {
			return c.Token, nil
		}
		if c.AccessToken != "" {
			return c.AccessToken, nil
		}
		return "", fmt.Errorf("token missing")
	case authModeOAuth1:
		if c.OAuthToken == "" {
			return "", fmt.Errorf("oauth token missing")
		}
		return c.OAuthToken, nil
	case authModeTBA:
		if c.TokenID == "" || c.TokenSecret == "" {
			return "", fmt.Errorf("token id/secret missing")
		}
		return c.TokenID + ":" + c.TokenSecret, nil
	case authModeCustom:
		if len(c.Raw) > 0 {
			return string(c.Raw), nil
		}
		return "", fmt.Errorf("raw payload missing")
	default:
		return "", fmt.Errorf("unknown auth mode %q", c.Type)
	}
}

// apiKeyPayload builds the write-back body, shrinking to the bare key when
// the full shape exceeds the broker limit.
func apiKeyPayload(value string) (json.RawMessage, error) {
	full, err := json.Marshal(map[string]string{"type": authModeAPIKey, "apiKey": value})
	if err != nil {
		return nil, err
	}
	if len(full) <= maxNangoPayload {
		return full, nil
	}
	minimal, err := json.Marshal(map[string]string{"apiKey": value})
	if err != nil {
		return nil, err
	}
	if len(minimal) > maxNangoPayload {
		return nil, domain.NewSubSystemError("credstore", "NangoStore.Set", domain.ErrInvalidInput,
			fmt.Sprintf("credential payload %d bytes exceeds %d limit", len(minimal), maxNangoPayload))
	}
	return minimal, nil
}

// splitNangoKey splits "connectionId:providerConfigKey"; the provider key
// part is optional.
func splitNangoKey(key string) (connectionID, providerKey string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}
