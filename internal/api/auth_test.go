package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
		wantErr error
	}{
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer k1"}, want: "k1"},
		{name: "lowercase scheme", headers: map[string]string{"Authorization": "bearer  k1 "}, want: "k1"},
		{name: "header fallback", headers: map[string]string{apiKeyHeader: "k2"}, want: "k2"},
		{name: "authorization wins", headers: map[string]string{"Authorization": "Bearer k1", apiKeyHeader: "k2"}, want: "k1"},
		{name: "nothing", wantErr: errNoCredentials},
		{name: "basic", headers: map[string]string{"Authorization": "Basic abc"}, wantErr: errBadScheme},
		{name: "bare token", headers: map[string]string{"Authorization": "k1"}, wantErr: errBadScheme},
		{name: "blank bearer", headers: map[string]string{"Authorization": "Bearer   "}, wantErr: errNoCredentials},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/plugins", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got, err := requestKey(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeysMatch(t *testing.T) {
	t.Parallel()

	assert.True(t, keysMatch("s3cret", "s3cret"))
	assert.False(t, keysMatch("s3cret", "s3cre"))
	assert.False(t, keysMatch("", ""))
	assert.False(t, keysMatch("s3cret", ""))
}

func TestAuthMiddleware_AcceptsHeaderKey(t *testing.T) {
	env := newTestEnv(t)
	router := env.server.setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/plugins", nil)
	req.Header.Set(apiKeyHeader, testAPIKey)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/plugins", nil)
	req.Header.Set(apiKeyHeader, "nope")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), errBadKey.Error())
}
