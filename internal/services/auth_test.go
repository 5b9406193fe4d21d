package services

import (
	"testing"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/pkg/utils"
)

func testVerifier() *CredentialVerifier {
	return NewCredentialVerifier(time.Hour,
		Credential{Role: models.RoleCustomer, Secret: "user-secret"},
		Credential{Role: models.RoleDriver, Secret: "driver-secret"},
		Credential{Role: models.RoleAdmin, Secret: "admin-secret"},
	)
}

func TestCredentialVerifierRoles(t *testing.T) {
	v := testVerifier()
	for _, role := range []models.Role{models.RoleCustomer, models.RoleDriver, models.RoleAdmin} {
		token, err := v.Issue(role, 42, "x@example.com")
		if err != nil {
			t.Fatalf("issue %s: %v", role, err)
		}
		p, err := v.Verify(token)
		if err != nil {
			t.Fatalf("verify %s: %v", role, err)
		}
		if p.Role != role || p.UserID != 42 {
			t.Fatalf("got %+v, want role %s id 42", p, role)
		}
	}
}

func TestCredentialVerifierFallsBackToGuest(t *testing.T) {
	v := testVerifier()

	foreign, err := utils.GenerateToken("someone-else", 7, "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := utils.GenerateToken("driver-secret", 7, "", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	for name, token := range map[string]string{"empty": "", "garbage": "not-a-jwt", "foreign": foreign, "expired": expired} {
		p := v.VerifyOrGuest(token)
		if p != Guest || p.Authenticated() {
			t.Errorf("%s: got %+v, want guest", name, p)
		}
	}
}

func TestCredentialVerifierUnknownRole(t *testing.T) {
	if _, err := testVerifier().Issue(models.RoleGuest, 1, ""); err == nil {
		t.Fatal("expected error issuing a guest token")
	}
}
