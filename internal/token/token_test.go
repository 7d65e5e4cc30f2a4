package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ggecl/auth-sessions/internal/model"
)

func newTestCodec() *Codec {
	return NewCodec("ggecl-auth", "access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec := newTestCodec()

	for _, kind := range []Kind{KindAccess, KindRefresh} {
		signed, err := codec.Issue(kind, "principal-1", model.RoleInstructor)
		if err != nil {
			t.Fatalf("issue %s: %v", kind, err)
		}
		id, role, err := codec.Verify(kind, signed)
		if err != nil {
			t.Fatalf("verify %s: %v", kind, err)
		}
		if id != "principal-1" || role != model.RoleInstructor {
			t.Fatalf("unexpected claims for %s: id=%s role=%s", kind, id, role)
		}
	}
}

func TestVerifyExpired(t *testing.T) {
	codec := newTestCodec()
	signed, err := codec.Issue(KindAccess, "principal-1", model.RoleStudent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	issued := codec.now()
	codec.now = func() time.Time { return issued.Add(16 * time.Minute) }

	if _, _, err := codec.Verify(KindAccess, signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyAtExpiryInstant(t *testing.T) {
	codec := newTestCodec()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return issued }

	signed, err := codec.Issue(KindAccess, "principal-1", model.RoleStudent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(15 * time.Minute) }
	if _, _, err := codec.Verify(KindAccess, signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at expiry instant, got %v", err)
	}
}

func TestVerifyWrongKindSecret(t *testing.T) {
	codec := newTestCodec()
	signed, err := codec.Issue(KindAccess, "principal-1", model.RoleStudent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := codec.Verify(KindRefresh, signed); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for cross-kind verify, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	codec := newTestCodec()
	if _, _, err := codec.Verify(KindAccess, "not-a-token"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyUnknownRole(t *testing.T) {
	codec := newTestCodec()
	now := time.Now().UTC()
	claims := Claims{
		Role: "janitor",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "principal-1",
			Issuer:    "ggecl-auth",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := codec.Verify(KindAccess, signed); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for unknown role, got %v", err)
	}
}
