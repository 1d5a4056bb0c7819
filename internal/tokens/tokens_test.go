package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)
	signer.now = func() time.Time { return now }
	return signer
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	_, err := NewSigner([]byte("short"))
	assert.ErrorIs(t, err, ErrSecret)
}

func TestExtensionToken(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	signer := newTestSigner(t, now)

	token, err := signer.ExtensionToken("user-1", "org-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(token, "."))
	assert.NotContains(t, token, "=")

	claims, err := signer.VerifyExtension(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, now.Add(time.Hour).UnixMilli(), claims.Expiry)
}

func TestExtensionTokenExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	signer := newTestSigner(t, now)

	token, err := signer.ExtensionToken("user-1", "org-1", time.Minute)
	require.NoError(t, err)

	signer.now = func() time.Time { return now.Add(time.Minute) }
	_, err = signer.VerifyExtension(token)
	assert.ErrorIs(t, err, ErrExpired)

	signer.now = func() time.Time { return now.Add(59 * time.Second) }
	_, err = signer.VerifyExtension(token)
	assert.NoError(t, err)
}

func TestShareToken(t *testing.T) {
	signer := newTestSigner(t, time.Now())

	token, err := signer.ShareToken("wt-1", "org-1")
	require.NoError(t, err)

	claims, err := signer.VerifyShare(token)
	require.NoError(t, err)
	assert.Equal(t, "wt-1", claims.WalkthroughID)
	assert.Equal(t, "org-1", claims.OrgID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	signer := newTestSigner(t, time.Now())

	share, err := signer.ShareToken("wt-1", "org-1")
	require.NoError(t, err)
	_, err = signer.VerifyExtension(share)
	assert.ErrorIs(t, err, ErrSignature)

	extension, err := signer.ExtensionToken("user-1", "org-1", time.Hour)
	require.NoError(t, err)
	_, err = signer.VerifyShare(extension)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := newTestSigner(t, time.Now())
	token, err := signer.ExtensionToken("user-1", "org-1", time.Hour)
	require.NoError(t, err)

	payload, signature, _ := strings.Cut(token, ".")
	forged := encoding.EncodeToString([]byte(`{"userId":"admin","orgId":"org-1","expiry":99999999999999}`))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMalformed},
		{"no separator", payload, ErrMalformed},
		{"empty signature", payload + ".", ErrMalformed},
		{"bad signature encoding", payload + ".!!!", ErrMalformed},
		{"forged payload", forged + "." + signature, ErrSignature},
		{"other secret", func() string {
			other, _ := NewSigner([]byte("fedcba9876543210fedcba9876543210"))
			token, _ := other.ExtensionToken("user-1", "org-1", time.Hour)
			return token
		}(), ErrSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.VerifyExtension(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMintRequiresIdentity(t *testing.T) {
	signer := newTestSigner(t, time.Now())

	_, err := signer.ExtensionToken("", "org-1", time.Hour)
	assert.Error(t, err)
	_, err = signer.ShareToken("wt-1", "")
	assert.Error(t, err)
}
