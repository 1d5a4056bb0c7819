// Package auth identifies who is calling: dashboard users by JWT, the
// extension by extension token and anonymous viewers by share token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vincentbai/stepcoach/internal/httputil"
	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/tokens"
)

type Source string

const (
	SourceDashboard Source = "dashboard"
	SourceExtension Source = "extension"
	SourceShare     Source = "share"
)

// Principal is the authenticated caller. WalkthroughID is set only for share access.
type Principal struct {
	UserID        string `json:"user_id,omitempty"`
	OrgID         string `json:"org_id"`
	Source        Source `json:"source"`
	WalkthroughID string `json:"walkthrough_id,omitempty"`
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, principal)
}

func FromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(contextKey{}).(Principal)
	return principal, ok
}

// DashboardClaims are issued by the hosted auth provider.
type DashboardClaims struct {
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// GenerateDashboardToken signs claims the way the auth provider does. Used by
// tooling and tests.
func GenerateDashboardToken(secret []byte, userID, orgID string, expiry time.Duration) (string, error) {
	if len(secret) < tokens.MinSecretLength {
		return "", tokens.ErrSecret
	}
	now := time.Now()
	claims := &DashboardClaims{
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateDashboardToken parses a dashboard JWT. Only HS256 is accepted.
func ValidateDashboardToken(secret []byte, tokenStr string) (*DashboardClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &DashboardClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*DashboardClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.OrgID == "" {
		return nil, errors.New("token missing sub or org_id")
	}
	return claims, nil
}

type Authenticator struct {
	jwtSecret []byte
	signer    *tokens.Signer
}

func New(jwtSecret []byte, signer *tokens.Signer) (*Authenticator, error) {
	if len(jwtSecret) < tokens.MinSecretLength {
		return nil, fmt.Errorf("jwt secret: %w", tokens.ErrSecret)
	}
	return &Authenticator{jwtSecret: jwtSecret, signer: signer}, nil
}

func (a *Authenticator) Signer() *tokens.Signer {
	return a.signer
}

func (a *Authenticator) dashboard(token string) (Principal, error) {
	claims, err := ValidateDashboardToken(a.jwtSecret, token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: claims.Subject, OrgID: claims.OrgID, Source: SourceDashboard}, nil
}

func (a *Authenticator) extension(token string) (Principal, error) {
	claims, err := a.signer.VerifyExtension(token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: claims.UserID, OrgID: claims.OrgID, Source: SourceExtension}, nil
}

// Share verifies a share token.
func (a *Authenticator) Share(token string) (Principal, error) {
	claims, err := a.signer.VerifyShare(token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{OrgID: claims.OrgID, Source: SourceShare, WalkthroughID: claims.WalkthroughID}, nil
}

// Dashboard requires a dashboard JWT.
func (a *Authenticator) Dashboard(next http.Handler) http.Handler {
	return a.require(next, a.dashboard)
}

// Extension requires an extension token.
func (a *Authenticator) Extension(next http.Handler) http.Handler {
	return a.require(next, a.extension)
}

// Any accepts a dashboard JWT, an extension token or a ?token= share token.
func (a *Authenticator) Any(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if principal, err := a.extension(token); err == nil {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
				return
			}
			if principal, err := a.dashboard(token); err == nil {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
				return
			}
			httputil.Unauthorized(w, "invalid token")
			return
		}
		if token := r.URL.Query().Get("token"); token != "" {
			if principal, err := a.Share(token); err == nil {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
				return
			}
			httputil.Unauthorized(w, "invalid token")
			return
		}
		httputil.Unauthorized(w, "missing authorization header")
	})
}

func (a *Authenticator) require(next http.Handler, verify func(string) (Principal, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.Unauthorized(w, "missing authorization header")
			return
		}
		principal, err := verify(token)
		if err != nil {
			logging.Debugf("rejected token on %s: %v", r.URL.Path, err)
			if errors.Is(err, tokens.ErrExpired) || errors.Is(err, jwt.ErrTokenExpired) {
				httputil.Unauthorized(w, "token expired")
				return
			}
			httputil.Unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
