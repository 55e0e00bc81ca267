package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"agrirent/internal/domain"
)

// Issuer is stamped on every token and required on verification.
const Issuer = "agrirent"

var ErrInvalidToken = errors.New("invalid token")

// Service verifies the HS256 tokens issued by the marketplace identity
// service. GenerateToken exists for local tooling and tests.
type Service struct {
	secret []byte
	ttl    time.Duration
	parser *jwtlib.Parser
}

type Claims struct {
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwtlib.RegisteredClaims
}

func New(secret string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		parser: jwtlib.NewParser(
			jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
			jwtlib.WithIssuer(Issuer),
			jwtlib.WithExpirationRequired(),
		),
	}
}

func (s *Service) GenerateToken(userID int64, role domain.Role) (string, error) {
	now := time.Now()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	})
	return token.SignedString(s.secret)
}

// ValidateToken rejects tokens without a user id or with a role this service
// does not know.
func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || claims.UserID == 0 || !claims.Role.Known() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
