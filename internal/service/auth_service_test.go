package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stemsi/quizlive-backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
		TeacherPIN: "4321",
	}
}

func TestCheckPIN(t *testing.T) {
	hash, err := HashPIN("9999", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	cases := []struct {
		name  string
		plain string
		hash  string
		pin   string
		want  error
	}{
		{"plain match", "4321", "", "4321", nil},
		{"plain mismatch", "4321", "", "1234", ErrInvalidPIN},
		{"hash wins over plain", "4321", hash, "4321", ErrInvalidPIN},
		{"hash match", "", hash, "9999", nil},
		{"not configured", "", "", "4321", ErrPINNotConfigured},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.TeacherPIN = tc.plain
			cfg.TeacherPINHash = tc.hash
			err := NewAuthService(cfg).CheckPIN(tc.pin)
			if !errors.Is(err, tc.want) {
				t.Fatalf("CheckPIN = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTeacherIDIsStable(t *testing.T) {
	a := TeacherID("Ms  Rivera")
	b := TeacherID(" ms rivera ")
	c := TeacherID("Mr Rivera")
	if a != b {
		t.Fatalf("same teacher got %s and %s", a, b)
	}
	if a == c {
		t.Fatal("different teachers share an id")
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	s := NewAuthService(testConfig())
	token, teacherID, err := s.Login("4321", "Ms Rivera")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.TeacherID != teacherID || claims.Subject != teacherID || claims.Name != "Ms Rivera" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, _, err := s.Login("0000", "Ms Rivera"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("bad pin login: %v", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	s := NewAuthService(testConfig())
	token, err := s.GenerateTeacherToken("t1", "T")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	t.Run("expired", func(t *testing.T) {
		late := NewAuthService(testConfig())
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		if _, err := late.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWTSecret = "other"
		if _, err := NewAuthService(cfg).ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := s.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err = %v", err)
		}
	})
}
