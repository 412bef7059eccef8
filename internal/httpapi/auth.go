package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ride-dispatch/internal/models"
)

const identityKey contextKey = "identity"

// Identity is the authenticated caller extracted from the JWT.
type Identity struct {
	UserID string
	Role   models.Actor
}

type claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for a user. Used by the websocket handshake test
// and local tooling; account issuance itself lives outside this service.
func IssueToken(secret []byte, userID string, role models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString(secret)
}

func parseToken(secret []byte, raw string) (Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	role := models.Actor(c.Role)
	switch role {
	case models.ActorPassenger, models.ActorDriver, models.ActorAdmin:
	default:
		return Identity{}, fmt.Errorf("unknown role %q", c.Role)
	}
	if c.UserID == "" {
		return Identity{}, fmt.Errorf("token missing user_id")
	}
	return Identity{UserID: c.UserID, Role: role}, nil
}

// authMiddleware requires a bearer token and puts the Identity in context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			s.writeEnvelope(w, http.StatusUnauthorized, envelope{Success: false, Message: "missing bearer token"})
			return
		}
		id, err := parseToken(s.jwtSecret, raw)
		if err != nil {
			s.writeEnvelope(w, http.StatusUnauthorized, envelope{Success: false, Message: "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole wraps a handler with a role check on top of authentication.
func (s *Server) requireRole(h http.HandlerFunc, roles ...models.Actor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(r.Context())
		if !ok {
			s.writeEnvelope(w, http.StatusUnauthorized, envelope{Success: false, Message: "not authenticated"})
			return
		}
		for _, role := range roles {
			if id.Role == role {
				h(w, r)
				return
			}
		}
		s.writeEnvelope(w, http.StatusForbidden, envelope{Success: false, Message: "insufficient role"})
	}
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// bearerToken reads the Authorization header, falling back to a token query
// parameter for the websocket handshake.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
