package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testVerifier() *services.CredentialVerifier {
	return services.NewCredentialVerifier(time.Hour,
		services.Credential{Role: models.RoleCustomer, Secret: "u"},
		services.Credential{Role: models.RoleDriver, Secret: "d"},
		services.Credential{Role: models.RoleAdmin, Secret: "a"},
	)
}

func newRouter(v *services.CredentialVerifier) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	echo := func(c *gin.Context) {
		p := GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"role": p.Role, "id": p.UserID})
	}
	r.GET("/strict", AuthMiddleware(v), echo)
	r.GET("/optional", OptionalAuth(v), echo)
	r.GET("/drivers", AuthMiddleware(v), RequireRoles(models.RoleDriver), echo)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	v := testVerifier()
	r := newRouter(v)
	driverToken, _ := v.Issue(models.RoleDriver, 9, "")
	customerToken, _ := v.Issue(models.RoleCustomer, 3, "")

	tests := []struct {
		name   string
		path   string
		header string
		query  string
		want   int
	}{
		{"missing token", "/strict", "", "", http.StatusUnauthorized},
		{"bad token", "/strict", "Bearer nope", "", http.StatusUnauthorized},
		{"header token", "/strict", "Bearer " + driverToken, "", http.StatusOK},
		{"query token", "/strict", "", driverToken, http.StatusOK},
		{"guest allowed", "/optional", "", "", http.StatusOK},
		{"bad token degrades", "/optional", "Bearer nope", "", http.StatusOK},
		{"role allowed", "/drivers", "Bearer " + driverToken, "", http.StatusOK},
		{"role denied", "/drivers", "Bearer " + customerToken, "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := tt.path
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.want, w.Body.String())
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Fatal("expected X-Request-ID header")
			}
		})
	}
}
