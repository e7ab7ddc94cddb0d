package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/auth"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyStore is the API key lookup the middleware needs.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// TokenValidator verifies user bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Auth authenticates requests and stores the resulting principal.
type Auth struct {
	keys   KeyStore
	tokens TokenValidator
}

func NewAuth(keys KeyStore, tokens TokenValidator) *Auth {
	return &Auth{keys: keys, tokens: tokens}
}

// Authenticate accepts either a user token or an API key. API keys without
// the write scope are limited to GET requests.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if strings.HasPrefix(raw, models.APIKeyPrefix) {
			a.authenticateKey(w, r, next, raw)
			return
		}

		claims, err := a.tokens.ValidateToken(raw)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token has expired"
			}
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", msg, nil)
			return
		}
		userID, err := claims.UserID()
		if err != nil || userID == uuid.Nil {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token subject", nil)
			return
		}

		ctx := SetPrincipal(r.Context(), tenancy.Principal{
			Subject:      userID,
			Role:         claims.Role,
			TenantSlug:   claims.TenantSlug,
			MFASatisfied: claims.MFA,
		})
		ctx = SetRateKey(ctx, "user:"+userID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) authenticateKey(w http.ResponseWriter, r *http.Request, next http.Handler, raw string) {
	if len(raw) < models.APIKeyLookupLen {
		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid API key format", nil)
		return
	}
	prefix := raw[:models.APIKeyLookupLen]

	keys, err := a.keys.GetAPIKeyByPrefix(r.Context(), prefix)
	if err != nil {
		slog.ErrorContext(r.Context(), "api key lookup failed", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to validate API key", nil)
		return
	}

	var key *models.APIKey
	for _, k := range keys {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(raw)) == nil {
			key = k
			break
		}
	}
	if key == nil {
		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid API key", nil)
		return
	}

	if !key.HasScope(models.ScopeWrite) && r.Method != http.MethodGet {
		response.Error(w, http.StatusForbidden,
			"FORBIDDEN", "API key is read-only", nil)
		return
	}

	go func(id uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.keys.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			slog.Warn("failed to record api key use", "key_id", id, "error", err)
		}
	}(key.ID)

	ctx := SetPrincipal(r.Context(), tenancy.Principal{
		Subject:  key.ID,
		Role:     models.RoleAdmin,
		TenantID: key.TenantID,
		APIKey:   true,
	})
	ctx = SetRateKey(ctx, "key:"+prefix)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
