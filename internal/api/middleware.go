package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

// SessionClaims are the claims of an embedded-app session token. Dest carries
// the shop origin the token was minted for.
type SessionClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// Shop extracts the bare shop domain from the dest claim.
func (c *SessionClaims) Shop() string {
	dest := strings.TrimPrefix(c.Dest, "https://")
	dest = strings.TrimPrefix(dest, "http://")
	return strings.TrimSuffix(dest, "/")
}

// VerifySessionToken validates an HS256-signed session token against the app
// shared secret.
func VerifySessionToken(token string, secret []byte) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_token, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case _token != nil && _token.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrUnrecognizedToken
	}
}

// NewSessionToken mints a session token. Production tokens come from the
// platform; this is used by tests and local tooling.
func NewSessionToken(shop string, expiration time.Duration, secret []byte) (string, error) {
	claims := &SessionClaims{
		Dest: "https://" + shop,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			Issuer:    "fishook",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

type contextKey int

const shopContextKey contextKey = iota

// ShopFromRequest returns the authenticated shop domain, empty when the
// request did not pass the session middleware.
func ShopFromRequest(r *http.Request) string {
	shop, _ := r.Context().Value(shopContextKey).(string)
	return shop
}

// SessionMiddleware verifies the bearer session token and stores the shop
// domain on the request context.
func SessionMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				WriteJsonResponseWithStatusCode(w, NewApiError("missing session token", http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			claims, err := VerifySessionToken(raw, secret)
			if err != nil {
				WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), shopContextKey, claims.Shop())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
