package crypto

import (
	"boardship/domain"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped on every session token and required on the way back in.
const Issuer = "boardship"

// PlayerClaims is what a session token says about its bearer. Username lets a server without
// a users table name its players.
type PlayerClaims struct {
	Id       string `json:"id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager issues and checks the HS256 session tokens that identify players. Tokens are
// issued by the account service; the game server only needs Verify, Generate is kept for
// tooling and tests.
type JWTManager struct {
	secretKey []byte
	maxAge    time.Duration
}

func NewJWTManager(secretKey string, maxAge time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
	}
}

func (m *JWTManager) Generate(id, username string, now time.Time) (string, error) {
	claims := PlayerClaims{
		Id:       id,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secretKey)

	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.UnexpectedTokenGenerationError, err)
	}

	return signedToken, nil
}

func (m *JWTManager) Verify(tokenString string) (PlayerClaims, error) {
	claims := &PlayerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidSigningAlg
		}
		return m.secretKey, nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuer(Issuer))

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSigningAlg):
			return PlayerClaims{}, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return PlayerClaims{}, domain.ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return PlayerClaims{}, domain.ErrInvalidTokenSignature
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return PlayerClaims{}, domain.ErrInvalidTokenIssuer
		case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return PlayerClaims{}, domain.ErrCorruptedToken
		default:
			return PlayerClaims{}, fmt.Errorf("%w: %w", domain.UnexpectedTokenVerificationError, err)
		}
	}

	if !token.Valid || claims.Id == "" {
		return PlayerClaims{}, domain.ErrCorruptedToken
	}

	return *claims, nil
}
