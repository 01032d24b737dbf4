package auth

import (
	"boardship/crypto"
	"boardship/domain"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	ErrMissingTokenStr = "missing-token"
	ErrExpiredTokenStr = "expired-token"
	ErrInvalidTokenStr = "invalid-token"
	ErrUnknownStr      = "unknown-error"
)

const TokenCookieName = "token"

type TokenVerifier interface {
	Verify(token string) (crypto.PlayerClaims, error)
}

// RequireAuthMiddleware resolves the player from the session cookie, or from a bearer header
// for clients that cannot send cookies, and stores it under "id" and "username". Forged
// tokens are answered after trollTime.
func RequireAuthMiddleware(verifier TokenVerifier, trollTime time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := tokenFromRequest(ctx)
		if token == "" {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}

		claims, err := verifier.Verify(token)

		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSigningAlg),
				errors.Is(err, domain.ErrInvalidTokenSignature),
				errors.Is(err, domain.ErrInvalidTokenIssuer),
				errors.Is(err, domain.ErrCorruptedToken):

				log.Warn().
					Str("ip", ctx.ClientIP()).
					Str("user_agent", ctx.Request.UserAgent()).
					Str("token", redact(token)).
					Err(err).
					Msg("suspicious token attempt")

				time.Sleep(trollTime)
				ctx.String(http.StatusUnauthorized, ErrInvalidTokenStr)
				ctx.Abort()

			case errors.Is(err, domain.ErrExpiredToken):
				log.Info().Str("ip", ctx.ClientIP()).Str("token", redact(token)).Msg("token expired")
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
				ctx.Abort()

			default:
				log.Error().Str("ip", ctx.ClientIP()).Str("token", redact(token)).Err(err).Msg("internal auth error")
				ctx.String(http.StatusUnauthorized, ErrUnknownStr)
				ctx.Abort()
			}
			return
		}

		ctx.Set("id", claims.Id)
		ctx.Set("username", claims.Username)
		ctx.Next()
	}
}

func tokenFromRequest(ctx *gin.Context) string {
	if token, err := ctx.Cookie(TokenCookieName); err == nil && token != "" {
		return token
	}
	header := ctx.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// redact keeps the header, the claims and the first 10 runes of the signature.
func redact(token string) string {
	tokenParts := strings.Split(token, ".")
	if len(tokenParts) != 3 {
		return token
	}
	sneak := tokenParts[2]
	if r := []rune(sneak); len(r) >= 10 {
		sneak = string(r[:10]) + strings.Repeat("*", len(r)-10)
	}
	return tokenParts[0] + "." + tokenParts[1] + "." + sneak
}
