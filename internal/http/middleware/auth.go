package middlewarex

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paylink/internal/apperr"
	"paylink/internal/domain/business"
	"paylink/internal/http/respond"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the dashboard session claims; Subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 session token for c.
func IssueToken(secret string, c business.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: c.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates the signature, the HMAC algorithm and expiry.
func ParseToken(secret, raw string) (business.Caller, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return business.Caller{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return business.Caller{}, errors.New("invalid token claims")
	}
	return business.Caller{ID: claims.Subject, Email: claims.Email}, nil
}

// JWTAuth requires "Authorization: Bearer <token>" and stores the caller
// in the request context.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				respond.Error(w, r, apperr.UnauthorizedErr("Authentication required"))
				return
			}
			caller, err := ParseToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				respond.Error(w, r, &apperr.AppError{Kind: apperr.Unauthorized, PublicMsg: "Invalid or expired session", Err: err})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
