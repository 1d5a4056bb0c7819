package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentbai/stepcoach/internal/httputil"
	"github.com/vincentbai/stepcoach/internal/tokens"
)

var (
	jwtSecret   = []byte("dashboard-secret-dashboard-secret-0001")
	tokenSecret = []byte("token-secret-token-secret-token-secret")
)

func setupAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	signer, err := tokens.NewSigner(tokenSecret)
	require.NoError(t, err)
	authenticator, err := New(jwtSecret, signer)
	require.NoError(t, err)
	return authenticator
}

// echo writes the principal it received.
var echo = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	principal, ok := FromContext(r.Context())
	if !ok {
		httputil.InternalError(w, "no principal")
		return
	}
	httputil.OkJSON(w, principal)
})

func call(t *testing.T, handler http.Handler, target, authorization string) (int, Principal, string) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	var principal Principal
	var failure httputil.ErrorResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&principal))
	} else {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&failure))
	}
	return w.Code, principal, failure.Message
}

func TestNewRejectsShortSecret(t *testing.T) {
	signer, err := tokens.NewSigner(tokenSecret)
	require.NoError(t, err)
	_, err = New([]byte("short"), signer)
	assert.ErrorIs(t, err, tokens.ErrSecret)
}

func TestDashboardMiddleware(t *testing.T) {
	authenticator := setupAuthenticator(t)
	handler := authenticator.Dashboard(echo)

	token, err := GenerateDashboardToken(jwtSecret, "user-1", "org-1", time.Hour)
	require.NoError(t, err)

	code, principal, _ := call(t, handler, "/", "Bearer "+token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, Principal{UserID: "user-1", OrgID: "org-1", Source: SourceDashboard}, principal)

	code, _, message := call(t, handler, "/", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing authorization header", message)

	code, _, _ = call(t, handler, "/", "Token "+token)
	assert.Equal(t, http.StatusUnauthorized, code)

	expired, err := GenerateDashboardToken(jwtSecret, "user-1", "org-1", -time.Minute)
	require.NoError(t, err)
	code, _, message = call(t, handler, "/", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "token expired", message)

	extensionToken, err := authenticator.Signer().ExtensionToken("user-1", "org-1", time.Hour)
	require.NoError(t, err)
	code, _, _ = call(t, handler, "/", "Bearer "+extensionToken)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestValidateDashboardTokenPinsHS256(t *testing.T) {
	claims := &DashboardClaims{
		OrgID:            "org-1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(jwtSecret)
	require.NoError(t, err)
	_, err = ValidateDashboardToken(jwtSecret, hs512)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateDashboardToken(jwtSecret, none)
	assert.Error(t, err)

	noOrg := &DashboardClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, noOrg).SignedString(jwtSecret)
	require.NoError(t, err)
	_, err = ValidateDashboardToken(jwtSecret, signed)
	assert.ErrorContains(t, err, "org_id")
}

func TestExtensionMiddleware(t *testing.T) {
	authenticator := setupAuthenticator(t)
	handler := authenticator.Extension(echo)

	token, err := authenticator.Signer().ExtensionToken("user-1", "org-1", time.Hour)
	require.NoError(t, err)
	code, principal, _ := call(t, handler, "/", "Bearer "+token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, SourceExtension, principal.Source)
	assert.Equal(t, "org-1", principal.OrgID)

	expired, err := authenticator.Signer().ExtensionToken("user-1", "org-1", -time.Second)
	require.NoError(t, err)
	code, _, message := call(t, handler, "/", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "token expired", message)

	dashboardToken, err := GenerateDashboardToken(jwtSecret, "user-1", "org-1", time.Hour)
	require.NoError(t, err)
	code, _, _ = call(t, handler, "/", "Bearer "+dashboardToken)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAnyMiddleware(t *testing.T) {
	authenticator := setupAuthenticator(t)
	handler := authenticator.Any(echo)

	extensionToken, err := authenticator.Signer().ExtensionToken("user-1", "org-1", time.Hour)
	require.NoError(t, err)
	dashboardToken, err := GenerateDashboardToken(jwtSecret, "user-2", "org-1", time.Hour)
	require.NoError(t, err)
	shareToken, err := authenticator.Signer().ShareToken("w1", "org-1")
	require.NoError(t, err)

	_, principal, _ := call(t, handler, "/", "Bearer "+extensionToken)
	assert.Equal(t, SourceExtension, principal.Source)

	_, principal, _ = call(t, handler, "/", "Bearer "+dashboardToken)
	assert.Equal(t, SourceDashboard, principal.Source)
	assert.Equal(t, "user-2", principal.UserID)

	code, principal, _ := call(t, handler, "/?token="+shareToken, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, Principal{OrgID: "org-1", Source: SourceShare, WalkthroughID: "w1"}, principal)

	code, _, _ = call(t, handler, "/?token="+strings.ToUpper(shareToken), "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = call(t, handler, "/", "Bearer "+shareToken)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = call(t, handler, "/", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		token, ok := bearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}
