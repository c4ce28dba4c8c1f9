package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
)

// =============================================================================
// TENANT RESOLUTION
// =============================================================================
// Every /api/v1 request is resolved to a tenant.Context before it reaches a
// handler. With a JWT secret configured the bearer token is required: "sub"
// is the actor and "tenant_id" the tenant. Without one (development) the
// X-Tenant-ID and X-Actor-ID headers are trusted.

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
	HeaderAdmin    = "X-Admin-Token"
)

// Claims carried by access tokens.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// GenerateToken issues an HS256 token for actorID acting in tenantID.
func GenerateToken(tenantID, actorID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	claims := Claims{
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func validateToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func extractTokenFromHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header required")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", errors.New("invalid authorization format")
	}
	return tokenString, nil
}

// TenantMiddleware resolves the tenant and actor of a request and rejects
// unknown or inactive tenants with 403.
func TenantMiddleware(gate *tenant.Gate, jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("tenant_middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolveContext(r, jwtSecret)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "UNAUTHORIZED"})
				return
			}
			if _, err := gate.LookupTenant(r.Context(), tc.TenantID); err != nil {
				logger.Warn("tenant rejected",
					zap.String("tenant_id", tc.TenantID.String()),
					zap.String("actor_id", tc.ActorID.String()),
					zap.Error(err))
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
		})
	}
}

func resolveContext(r *http.Request, jwtSecret string) (tenant.Context, error) {
	var tenantRaw, actorRaw string
	if jwtSecret != "" {
		tokenString, err := extractTokenFromHeader(r)
		if err != nil {
			return tenant.Context{}, err
		}
		claims, err := validateToken(tokenString, jwtSecret)
		if err != nil {
			return tenant.Context{}, err
		}
		tenantRaw, actorRaw = claims.TenantID, claims.Subject
	} else {
		tenantRaw, actorRaw = r.Header.Get(HeaderTenantID), r.Header.Get(HeaderActorID)
	}

	tenantID, err := generic.ParseID("tenant_id", tenantRaw)
	if err != nil {
		return tenant.Context{}, err
	}
	actorID, err := generic.ParseID("actor_id", actorRaw)
	if err != nil {
		return tenant.Context{}, err
	}
	tc := tenant.New(tenantID, actorID)
	return tc, tc.Validate()
}

// AdminMiddleware guards tenant provisioning with a static token. An empty
// token disables the admin routes.
func AdminMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get(HeaderAdmin) != token {
				writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "access denied", Code: generic.CodeAccessDenied})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tenantFrom(ctx context.Context) tenant.Context {
	tc, _ := tenant.FromContext(ctx)
	return tc
}
