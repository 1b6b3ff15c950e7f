package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/quizlive-backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidPIN       = errors.New("invalid teacher PIN")
	ErrPINNotConfigured = errors.New("teacher PIN is not configured")
	ErrInvalidToken     = errors.New("invalid token")
)

// teacherNamespace scopes name-derived teacher identities.
var teacherNamespace = uuid.MustParse("6f1c2b9e-3d54-4f0a-9a8e-7c1d2e3f4a5b")

// TokenTypeTeacher is the only token the service issues. Students are
// anonymous and identified per session.
const TokenTypeTeacher = "teacher"

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
	TeacherID string `json:"teacher_id"`
	Name      string `json:"name"`
}

// AuthService gates teachers behind the shared PIN and issues their tokens.
type AuthService struct {
	cfg *config.Config
	now func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

// HashPIN hashes a PIN with the configured bcrypt cost, for TEACHER_PIN_HASH.
func HashPIN(pin string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	return string(hash), err
}

// CheckPIN compares pin against the configured hash, or the plain PIN when
// no hash is set.
func (s *AuthService) CheckPIN(pin string) error {
	if s.cfg.TeacherPINHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.TeacherPINHash), []byte(pin)); err != nil {
			return ErrInvalidPIN
		}
		return nil
	}
	if s.cfg.TeacherPIN == "" {
		return ErrPINNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(s.cfg.TeacherPIN), []byte(pin)) != 1 {
		return ErrInvalidPIN
	}
	return nil
}

// TeacherID derives a stable identity from a display name so a teacher who
// logs in again owns the same quizzes and sessions.
func TeacherID(name string) string {
	key := strings.ToLower(strings.Join(strings.Fields(name), " "))
	return uuid.NewSHA1(teacherNamespace, []byte(key)).String()
}

// Login checks the PIN and returns a signed token with the teacher identity.
func (s *AuthService) Login(pin, name string) (token, teacherID string, err error) {
	if err := s.CheckPIN(pin); err != nil {
		return "", "", err
	}
	teacherID = TeacherID(name)
	token, err = s.GenerateTeacherToken(teacherID, strings.TrimSpace(name))
	if err != nil {
		return "", "", err
	}
	return token, teacherID, nil
}

// GenerateTeacherToken creates a JWT for a teacher.
func (s *AuthService) GenerateTeacherToken(teacherID, name string) (string, error) {
	now := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   teacherID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeTeacher,
		TeacherID: teacherID,
		Name:      name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a teacher JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != TokenTypeTeacher || claims.TeacherID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
