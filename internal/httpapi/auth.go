// Package httpapi exposes the control plane's REST surface described in
// spec.md §6, grounded on internal/app/httpapi's stdlib-mux-plus-bearer-
// token style: a plain *http.ServeMux, a JWT-validating auth middleware
// injecting caller identity into the request context, and writeJSON/
// writeError response helpers.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

type ctxKey string

const (
	ctxTenantKey    ctxKey = "httpapi.tenant"
	ctxRoleKey      ctxKey = "httpapi.role"
	ctxUserKey      ctxKey = "httpapi.user"
	ctxRequestIDKey ctxKey = "httpapi.request_id"
)

// Caller is the {tenant_id, role, user_id} identity spec.md §6 requires on
// every request.
type Caller struct {
	TenantID string
	Role     domain.Role
	UserID   string
}

// Claims is the JWT payload a caller's bearer token must carry.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenValidator verifies a bearer token and returns the caller identity it
// asserts.
type TokenValidator interface {
	Validate(token string) (Caller, error)
}

// HS256Validator validates HS256 JWTs signed with a shared secret, mirroring
// internal/app/httpapi's SupabaseJWTValidator.
type HS256Validator struct {
	secret []byte
}

func NewHS256Validator(secret string) *HS256Validator {
	return &HS256Validator{secret: []byte(secret)}
}

func (v *HS256Validator) Validate(token string) (Caller, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Caller{}, apperrors.Unauthorized("invalid token")
	}
	role := domain.Role(strings.ToUpper(claims.Role))
	if !isKnownRole(role) {
		return Caller{}, apperrors.Unauthorized("invalid role claim")
	}
	if claims.TenantID == "" {
		return Caller{}, apperrors.Unauthorized("missing tenant claim")
	}
	return Caller{TenantID: claims.TenantID, Role: role, UserID: claims.UserID}, nil
}

// StaticTokenValidator resolves a fixed token->Caller map, for local
// development and tests where standing up a JWT issuer is overkill.
type StaticTokenValidator struct {
	byToken map[string]Caller
}

func NewStaticTokenValidator(byToken map[string]Caller) *StaticTokenValidator {
	return &StaticTokenValidator{byToken: byToken}
}

func (v *StaticTokenValidator) Validate(token string) (Caller, error) {
	caller, ok := v.byToken[token]
	if !ok {
		return Caller{}, apperrors.Unauthorized("unknown token")
	}
	return caller, nil
}

func isKnownRole(r domain.Role) bool {
	switch r {
	case domain.RoleAdmin, domain.RoleOps, domain.RoleAnalyst, domain.RoleAuditor, domain.RoleReadOnly:
		return true
	default:
		return false
	}
}

var publicPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// wrapWithAuth extracts the bearer token, validates it, and injects the
// resulting Caller plus a request id into the request context. It also
// honours or generates X-Correlation-ID per spec.md §6 and echoes
// X-Request-ID on every response.
func wrapWithAuth(next http.Handler, validator TokenValidator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Correlation-ID"))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxRequestIDKey, requestID)

		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			writeError(w, requestID, apperrors.Unauthorized("missing bearer token"))
			return
		}
		caller, err := validator.Validate(token)
		if err != nil {
			writeError(w, requestID, err)
			return
		}
		ctx = context.WithValue(ctx, ctxTenantKey, caller.TenantID)
		ctx = context.WithValue(ctx, ctxRoleKey, caller.Role)
		ctx = context.WithValue(ctx, ctxUserKey, caller.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func callerFromContext(ctx context.Context) Caller {
	tenant, _ := ctx.Value(ctxTenantKey).(string)
	role, _ := ctx.Value(ctxRoleKey).(domain.Role)
	user, _ := ctx.Value(ctxUserKey).(string)
	return Caller{TenantID: tenant, Role: role, UserID: user}
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestIDKey).(string)
	return id
}

// requireRole enforces spec.md §6's role gates: ADMIN/OPS for mutating
// control-plane operations, ANALYST also for scoring/rollup triggers,
// AUDITOR/READ_ONLY are read-only.
func requireRole(ctx context.Context, allowed ...domain.Role) error {
	caller := callerFromContext(ctx)
	for _, r := range allowed {
		if caller.Role == r {
			return nil
		}
	}
	return apperrors.Forbidden(fmt.Sprintf("role %s cannot perform this operation", caller.Role))
}

var mutatingRoles = []domain.Role{domain.RoleAdmin, domain.RoleOps}
var scoringRoles = []domain.Role{domain.RoleAdmin, domain.RoleOps, domain.RoleAnalyst}

func newRequestID() string {
	return uuid.New().String()
}
