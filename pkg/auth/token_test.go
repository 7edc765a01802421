package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront"}

func TestMintAndVerifyAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(testJWT, now, 30*time.Minute, AccessTokenPayload{
		UserID: userID,
		Email:  "ada@example.com",
		Role:   enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := VerifyAccessToken(testJWT, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.RoleAdmin {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Email != "ada@example.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
	if actor := claims.Actor(); !actor.IsAdmin() || actor.UserID != userID {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestVerifyAccessTokenRejectsForeignAlgorithm(t *testing.T) {
	claims := &AccessTokenClaims{UserID: uuid.New(), Role: enums.RoleCustomer}
	claims.Issuer = testJWT.Issuer
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyAccessToken(testJWT, unsigned); err == nil {
		t.Fatal("expected alg=none token to fail")
	}
}

func TestVerifyAccessTokenRejectsSubjectMismatch(t *testing.T) {
	claims := &AccessTokenClaims{UserID: uuid.New(), Role: enums.RoleCustomer}
	claims.Issuer = testJWT.Issuer
	claims.Subject = uuid.NewString()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyAccessToken(testJWT, signed); err == nil || !strings.Contains(err.Error(), "subject") {
		t.Fatalf("expected subject mismatch, got %v", err)
	}
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	token, err := MintAccessToken(testJWT, past, time.Minute, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := VerifyAccessToken(testJWT, token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestVerifyAccessTokenRejectsWrongIssuer(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now(), time.Minute, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := testJWT
	other.Issuer = "someone-else"
	if _, err := VerifyAccessToken(other, token); err == nil || !strings.Contains(err.Error(), "iss") {
		t.Fatalf("expected issuer failure, got %v", err)
	}
}

func TestMintRejectsUnknownRole(t *testing.T) {
	if _, err := MintAccessToken(testJWT, time.Now(), time.Minute, AccessTokenPayload{UserID: uuid.New(), Role: "owner"}); err == nil {
		t.Fatal("expected invalid role to fail")
	}
}

func TestActor(t *testing.T) {
	guest := Guest()
	if guest.IsAuthenticated() || guest.IsAdmin() || guest.UserRef() != nil {
		t.Fatal("guest should carry no identity")
	}
	id := uuid.New()
	admin := Actor{UserID: id, Role: enums.RoleAdmin}
	if !admin.IsAdmin() {
		t.Fatal("expected admin")
	}
	if ref := admin.UserRef(); ref == nil || *ref != id {
		t.Fatal("expected user ref")
	}
	if (Actor{Role: enums.RoleAdmin}).IsAdmin() {
		t.Fatal("admin role without identity should not count")
	}
}
