package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// apiKeyHeader is accepted for clients that cannot set Authorization.
const apiKeyHeader = "X-API-Key"

var (
	errNoCredentials = errors.New("missing API key")
	errBadScheme     = errors.New("authorization scheme must be Bearer")
	errBadKey        = errors.New("invalid API key")
)

// requestKey pulls the caller's key from Authorization: Bearer or X-API-Key.
// Authorization wins when both are present.
func requestKey(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, key, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return "", errBadScheme
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
		return "", errNoCredentials
	}
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key, nil
	}
	return "", errNoCredentials
}

// keysMatch compares in constant time. An empty configured key never matches.
func keysMatch(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := requestKey(r)
		if err == nil && !keysMatch(key, s.config.APIKey) {
			err = errBadKey
		}
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
