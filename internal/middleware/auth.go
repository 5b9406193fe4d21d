package middleware

import (
	"net/http"
	"strings"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	// Browsers cannot set headers on a WebSocket handshake.
	return c.Query("token")
}

// AuthMiddleware requires a valid token signed by one of the role secrets.
func AuthMiddleware(verifier *services.CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header or token query parameter required")
			return
		}

		p, err := verifier.Verify(token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		setPrincipal(c, p)
		c.Next()
	}
}

// OptionalAuth resolves the caller when a valid token is present and treats
// everyone else as a guest.
func OptionalAuth(verifier *services.CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		setPrincipal(c, verifier.VerifyOrGuest(bearerToken(c)))
		c.Next()
	}
}

func setPrincipal(c *gin.Context, p services.Principal) {
	c.Set(principalKey, p)
	c.Set("userId", p.UserID)
	c.Set("userRole", string(p.Role))
}

// GetPrincipal returns the caller, or the guest principal when no auth
// middleware ran.
func GetPrincipal(c *gin.Context) services.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(services.Principal); ok {
			return p
		}
	}
	return services.Guest
}

// RequireRoles only lets through callers holding one of roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if !p.Authenticated() {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			abortJSON(c, http.StatusForbidden, "FORBIDDEN", "role not allowed")
			return
		}
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
