// Package tokens mints and verifies the stateless credentials handed to the
// browser extension and embedded in public share links.
//
// Wire format: base64url(json payload) "." base64url(HMAC-SHA256(payload)).
// There is no revocation list; validity is signature plus expiry.
package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("tokens: malformed token")
	ErrSignature = errors.New("tokens: invalid signature")
	ErrExpired   = errors.New("tokens: token expired")
	ErrSecret    = errors.New("tokens: secret must be at least 32 bytes")
)

const MinSecretLength = 32

const (
	purposeExtension = "extension"
	purposeShare     = "share"
)

var encoding = base64.RawURLEncoding

// ExtensionClaims identify a user and organization to the backend APIs.
// Expiry is unix milliseconds, matching Date.now() in the extension.
type ExtensionClaims struct {
	UserID string `json:"userId"`
	OrgID  string `json:"orgId"`
	Expiry int64  `json:"expiry"`
}

// ShareClaims grant read access to one walkthrough. They never expire.
type ShareClaims struct {
	WalkthroughID string `json:"walkthroughId"`
	OrgID         string `json:"orgId"`
}

type Signer struct {
	extensionKey []byte
	shareKey     []byte
	now          func() time.Time
}

// NewSigner derives one key per token kind from secret so an extension token
// never verifies as a share token and vice versa.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecret
	}
	return &Signer{
		extensionKey: derive(secret, purposeExtension),
		shareKey:     derive(secret, purposeShare),
		now:          time.Now,
	}, nil
}

func derive(secret []byte, purpose string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}

func (s *Signer) ExtensionToken(userID, orgID string, ttl time.Duration) (string, error) {
	if userID == "" || orgID == "" {
		return "", fmt.Errorf("tokens: user and org are required")
	}
	claims := ExtensionClaims{
		UserID: userID,
		OrgID:  orgID,
		Expiry: s.now().Add(ttl).UnixMilli(),
	}
	return sign(s.extensionKey, claims)
}

func (s *Signer) VerifyExtension(token string) (*ExtensionClaims, error) {
	var claims ExtensionClaims
	if err := verify(s.extensionKey, token, &claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.OrgID == "" {
		return nil, ErrMalformed
	}
	if s.now().UnixMilli() >= claims.Expiry {
		return nil, ErrExpired
	}
	return &claims, nil
}

func (s *Signer) ShareToken(walkthroughID, orgID string) (string, error) {
	if walkthroughID == "" || orgID == "" {
		return "", fmt.Errorf("tokens: walkthrough and org are required")
	}
	return sign(s.shareKey, ShareClaims{WalkthroughID: walkthroughID, OrgID: orgID})
}

func (s *Signer) VerifyShare(token string) (*ShareClaims, error) {
	var claims ShareClaims
	if err := verify(s.shareKey, token, &claims); err != nil {
		return nil, err
	}
	if claims.WalkthroughID == "" || claims.OrgID == "" {
		return nil, ErrMalformed
	}
	return &claims, nil
}

func sign(key []byte, claims any) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("tokens: failed to encode claims: %w", err)
	}
	encoded := encoding.EncodeToString(payload)
	return encoded + "." + encoding.EncodeToString(mac(key, encoded)), nil
}

func verify(key []byte, token string, claims any) error {
	payloadSegment, signatureSegment, ok := strings.Cut(token, ".")
	if !ok || payloadSegment == "" || signatureSegment == "" {
		return ErrMalformed
	}
	signature, err := encoding.DecodeString(signatureSegment)
	if err != nil {
		return ErrMalformed
	}
	if !hmac.Equal(signature, mac(key, payloadSegment)) {
		return ErrSignature
	}
	payload, err := encoding.DecodeString(payloadSegment)
	if err != nil {
		return ErrMalformed
	}
	if err := json.Unmarshal(payload, claims); err != nil {
		return ErrMalformed
	}
	return nil
}

func mac(key []byte, segment string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(segment))
	return h.Sum(nil)
}
