package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the storefront access token claims. The user id travels in
// "uid" and falls back to the subject.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secret []byte
	issuer string
}

func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{secret: []byte(secret), issuer: issuer}
}

func (m *JWTManager) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *JWTManager) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AuthMiddleware requires a valid bearer token and puts the buyer it names
// into the request context.
func AuthMiddleware(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := jwtMgr.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
				return
			}
			buyer := payment.Buyer{ID: claims.UserID, Email: claims.Email, Name: claims.Name}
			ctx := context.WithValue(r.Context(), userKey, buyer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func buyerFromContext(ctx context.Context) (payment.Buyer, bool) {
	b, ok := ctx.Value(userKey).(payment.Buyer)
	return b, ok && b.ID != ""
}
