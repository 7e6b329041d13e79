package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
)

// DefaultTokenTTL задаёт срок жизни токена по умолчанию
const DefaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("недействительный токен")

// JWTService отвечает за создание и валидацию JWT токенов
type JWTService struct {
	secretKey string
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTService создаёт новый экземпляр JWTService
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{secretKey: secretKey, ttl: DefaultTokenTTL, now: time.Now}
}

// WithTTL меняет срок жизни выдаваемых токенов
func (s *JWTService) WithTTL(ttl time.Duration) *JWTService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// GenerateToken создаёт JWT токен для сессии
func (s *JWTService) GenerateToken(sess session.Session) (string, error) {
	if err := sess.Validate(); err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"user_id": sess.UserID.String(),
		"name":    sess.Name,
		"role":    string(sess.Role),
		"exp":     s.now().Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// ValidateToken проверяет JWT токен
func (s *JWTService) ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	}, jwt.WithTimeFunc(s.now))
}

// ExtractSession проверяет токен и восстанавливает из него сессию
func (s *JWTService) ExtractSession(tokenString string) (session.Session, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return session.Session{}, ErrInvalidToken
	}

	// user_id в старых токенах мог быть числом
	var userID string
	switch v := claims["user_id"].(type) {
	case string:
		userID = v
	case float64:
		userID = fmt.Sprintf("%.0f", v)
	}
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)

	sess := session.Session{
		UserID: models.ID(userID),
		Name:   name,
		Role:   models.Role(role),
	}
	if err := sess.Validate(); err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return sess, nil
}
