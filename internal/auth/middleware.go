package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
)

var tracer = otel.Tracer("convex-versioned-assets/auth")

// Config configures actor derivation, read once at process startup and
// passed into NewMiddleware as a capability rather than read from the
// environment here.
type Config struct {
	JWTSecret    string
	AdminEmails  []string
	AdminKeyHash string
}

// Middleware derives an Actor from the Authorization header on every
// request and attaches it to the request context. It never aborts the
// chain itself — public operations must keep working with no credential
// at all — leaving the admin/authed/public check to auth.Require at the
// internal/api operation boundary.
type Middleware struct {
	cfg      Config
	adminKey AdminKeyVerifier
	admins   map[string]struct{}
}

func NewMiddleware(cfg Config) *Middleware {
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		admins[strings.ToLower(e)] = struct{}{}
	}
	return &Middleware{
		cfg:      cfg,
		adminKey: NewAdminKeyVerifier(cfg.AdminKeyHash),
		admins:   admins,
	}
}

func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "auth.middleware")
		defer span.End()

		actor := m.deriveActor(c, span)
		c.Request = c.Request.WithContext(WithActor(ctx, actor))
		c.Next()
	}
}

func (m *Middleware) deriveActor(c *gin.Context, span trace.Span) Actor {
	header := c.GetHeader("Authorization")
	if header == "" {
		return Public
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		span.SetAttributes(attribute.String("auth.error", "invalid_authorization_format"))
		return Public
	}
	token := parts[1]

	if m.adminKey.Verify(token) {
		return Actor{Level: LevelAdmin}
	}

	email, ok := m.parseJWTEmail(token)
	if !ok {
		span.SetAttributes(attribute.String("auth.error", "invalid_token"))
		return Public
	}

	if _, isAdmin := m.admins[strings.ToLower(email)]; isAdmin {
		return Actor{Level: LevelAdmin, Email: email}
	}
	return Actor{Level: LevelAuthed, Email: email}
}

func (m *Middleware) parseJWTEmail(tokenString string) (string, bool) {
	if m.cfg.JWTSecret == "" {
		return "", false
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(m.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", false
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return "", false
	}
	return email, true
}

// RequireGin is a gin.HandlerFunc that aborts with the status matching
// apperror.HTTPStatus when the request's Actor doesn't meet min. Used by
// internal/server routes that are entirely one authorization level
// (e.g. the admin-only websocket upgrade).
func RequireGin(min Level) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := FromContext(c.Request.Context())
		if err := Require(actor, min); err != nil {
			status := http.StatusForbidden
			if kind, ok := apperror.KindOf(err); ok {
				status = apperror.HTTPStatus(kind)
			}
			c.JSON(status, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}
