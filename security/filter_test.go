package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *Config {
	return &Config{
		Enabled:     true,
		Secret:      testSecret,
		Issuer:      "viewhost",
		Leeway:      time.Second,
		TokenTTL:    time.Hour,
		PublicPaths: []string{"/healthz", "/views/*/*/*/resources/static/**"},
	}
}

func newTestFilter(t *testing.T) *Filter {
	t.Helper()
	f, err := NewFilter(testConfig(), nil)
	require.NoError(t, err)
	return f
}

func protected(t *testing.T, f *Filter) http.Handler {
	t.Helper()
	return f.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if ok {
			_, _ = w.Write([]byte(p.Subject))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	}))
}

func request(h http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestFilter_IssueAndAuthenticate(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t)
	token, err := f.IssueToken("ada", "admin", "viewer")
	require.NoError(t, err)

	p, err := f.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "ada", p.Subject)
	assert.True(t, p.HasRole("admin"))
	assert.False(t, p.HasRole("root"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), p.ExpiresAt, 5*time.Second)
}

func TestFilter_Middleware(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t)
	h := protected(t, f)
	token, err := f.IssueToken("grace")
	require.NoError(t, err)

	rec := request(h, "/api/v1/views/instances", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grace", rec.Body.String())

	rec = request(h, "/api/v1/views/instances", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="viewhost"`, rec.Header().Get("WWW-Authenticate"))

	rec = request(h, "/api/v1/views/instances", "Bearer nonsense")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	rec = request(h, "/healthz", "")
	assert.Equal(t, "anonymous", rec.Body.String())
	rec = request(h, "/views/FILES/1.0/a/resources/static/css/app.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = request(h, "/views/FILES/1.0/a/resources/private", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFilter_Disabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enabled = false
	cfg.Secret = ""
	f, err := NewFilter(cfg, nil)
	require.NoError(t, err)

	rec := request(protected(t, f), "/anything", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestFilter_RejectsTokens(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t)
	now := time.Now()
	valid := jwt.MapClaims{"sub": "ada", "iss": "viewhost", "exp": now.Add(time.Hour).Unix()}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrMissingToken},
		{"expired", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ada", "iss": "viewhost", "exp": now.Add(-time.Hour).Unix()}), ErrTokenExpired},
		{"wrong secret", signed(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), valid), ErrTokenInvalid},
		{"wrong issuer", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ada", "iss": "other", "exp": now.Add(time.Hour).Unix()}), ErrTokenInvalid},
		{"no expiry", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ada", "iss": "viewhost"}), ErrTokenInvalid},
		{"no subject", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"iss": "viewhost", "exp": now.Add(time.Hour).Unix()}), ErrTokenInvalid},
		{"none algorithm", signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Authenticate(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.Secret = ""
	assert.ErrorIs(t, cfg.Validate(), ErrSecretRequired)

	cfg = testConfig()
	cfg.Secret = "short"
	assert.ErrorIs(t, cfg.Validate(), ErrSecretTooShort)

	cfg = testConfig()
	cfg.PublicPaths = []string{"/static/[unclosed"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPublicPath)
	_, err := NewFilter(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidPublicPath)
}
