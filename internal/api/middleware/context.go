package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	rateKeyKey   contextKey = "rate_key"
)

func SetPrincipal(ctx context.Context, p tenancy.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(r *http.Request) (tenancy.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(tenancy.Principal)
	return p, ok
}

// SetRateKey records the identity requests are counted against.
func SetRateKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, rateKeyKey, key)
}

func getRateKey(r *http.Request) (string, bool) {
	key, ok := r.Context().Value(rateKeyKey).(string)
	return key, ok && key != ""
}
