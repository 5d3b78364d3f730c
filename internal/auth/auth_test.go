package auth

import (
	"context"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("member-42", []string{"staff", "staff", " mods "}, true, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "member-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !claims.Admin {
		t.Fatal("admin flag lost")
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	setSecret(t)

	for _, tok := range []string{"", "  ", "not.a.token"} {
		if _, err := ParseAndValidate(tok); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("member-1", nil, false, time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	setSecret(t)

	if _, err := GenerateToken("", nil, false, time.Minute); err == nil {
		t.Fatal("expected error for empty member")
	}
	if _, err := GenerateToken("member-1", nil, false, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithUser(ctx, User{ID: "member-7", Roles: []string{"staff", "staff", "mods"}, Admin: true})

	id, ok := UserIDFromContext(ctx)
	if !ok || id != "member-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	if roles := RolesFromContext(ctx); len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
	if !HasRole(ctx, "mods") || !HasRole(ctx, "staff") {
		t.Fatal("HasRole missing expected roles")
	}
	if HasRole(ctx, "guest") {
		t.Fatal("unexpected role found")
	}
	u, ok := UserFromContext(ctx)
	if !ok || !u.Admin {
		t.Fatalf("admin flag lost: %+v", u)
	}
}

func TestUserIDFromEmptyContext(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user on empty context")
	}
}
