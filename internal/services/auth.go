package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/pkg/utils"
)

// Principal is the authenticated identity behind a request or connection.
type Principal struct {
	Role   models.Role `json:"role"`
	UserID uint        `json:"userId,omitempty"`
}

var Guest = Principal{Role: models.RoleGuest}

func (p Principal) Authenticated() bool {
	return p.Role != models.RoleGuest && p.Role != "" && p.UserID != 0
}

// Credential pairs a signing secret with the role its tokens grant.
type Credential struct {
	Role   models.Role
	Secret string
}

var errNoCredential = errors.New("token not signed by any known credential")

// CredentialVerifier tries each credential in order and returns the first
// that validates the token.
type CredentialVerifier struct {
	creds []Credential
	ttl   time.Duration
}

func NewCredentialVerifier(ttl time.Duration, creds ...Credential) *CredentialVerifier {
	return &CredentialVerifier{creds: creds, ttl: ttl}
}

func (v *CredentialVerifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Guest, errNoCredential
	}
	for _, c := range v.creds {
		claims, err := utils.ValidateToken(c.Secret, token)
		if err != nil {
			continue
		}
		return Principal{Role: c.Role, UserID: claims.UserID}, nil
	}
	return Guest, errNoCredential
}

// VerifyOrGuest degrades any failure to the guest principal.
func (v *CredentialVerifier) VerifyOrGuest(token string) Principal {
	p, err := v.Verify(token)
	if err != nil {
		return Guest
	}
	return p
}

func (v *CredentialVerifier) Issue(role models.Role, userID uint, email string) (string, error) {
	for _, c := range v.creds {
		if c.Role == role {
			return utils.GenerateToken(c.Secret, userID, email, v.ttl)
		}
	}
	return "", fmt.Errorf("no credential for role %q", role)
}
