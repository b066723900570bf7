package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/config"
)

var errNoCredentials = errors.New("no credentials supplied")

// sessionClaims are the claims carried by an upstream session token.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// authMiddleware admits a request carrying the configured API key (X-API-Key,
// bearer token, or api_key query parameter) or, when a JWT secret is set, a
// bearer token signed with it.
func authMiddleware(cfg config.AuthConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := authenticate(r, cfg)
			if err != nil {
				logger.Debug("request rejected",
					zap.String("request_id", requestIDFromContext(r.Context())),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if subject != "" {
				logger.Debug("session verified",
					zap.String("request_id", requestIDFromContext(r.Context())),
					zap.String("subject", subject),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate returns the token subject for session tokens and "" for API
// keys.
func authenticate(r *http.Request, cfg config.AuthConfig) (string, error) {
	bearer, hasBearer := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	key := r.Header.Get("X-API-Key")
	if key == "" && hasBearer {
		key = bearer
	}
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}

	if cfg.APIKey != "" && key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1 {
		return "", nil
	}
	if cfg.JWTSecret != "" && hasBearer {
		return verifySessionToken(bearer, cfg.JWTSecret)
	}
	if key == "" {
		return "", errNoCredentials
	}
	return "", errors.New("api key mismatch")
}

func verifySessionToken(token, secret string) (string, error) {
	claims := &sessionClaims{}
	keyFunc := func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("verify session token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("session token invalid")
	}
	return claims.Subject, nil
}
