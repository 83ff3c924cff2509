package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const claimsKey ctxKey = iota

const revokedTokenPrefix = "auth:revoked:"

// Claims carried by portal access tokens. MemberID is zero for staff users.
type Claims struct {
	UserID   int64 `json:"user_id"`
	MemberID int64 `json:"member_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens. Tokens whose jti has been revoked in
// Redis are rejected.
type Authenticator struct {
	secret []byte
	redis  *redis.Client
}

func NewAuthenticator(secret string, redisClient *redis.Client) *Authenticator {
	return &Authenticator{secret: []byte(secret), redis: redisClient}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := a.validateToken(r.Context(), parts[1])
		if err != nil {
			log.Printf("[AUTH] Rejected token: %v", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

var errRevoked = errors.New("token revoked")

func (a *Authenticator) validateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("token has no user")
	}

	if a.redis != nil && claims.ID != "" {
		n, err := a.redis.Exists(ctx, revokedTokenPrefix+claims.ID).Result()
		if err != nil {
			// fail open
			log.Printf("[AUTH] Revocation check failed: %v", err)
		} else if n > 0 {
			return nil, errRevoked
		}
	}
	return claims, nil
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}
