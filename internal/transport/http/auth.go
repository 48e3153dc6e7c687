package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pair-quiz-service/internal/domain"
)

type playerKey struct{}

// PlayerFromContext returns the authenticated player stored by Authenticator.Middleware.
func PlayerFromContext(ctx context.Context) (domain.Player, bool) {
	player, ok := ctx.Value(playerKey{}).(domain.Player)
	return player, ok
}

// WithPlayer stores player in ctx the same way the auth middleware does.
func WithPlayer(ctx context.Context, player domain.Player) context.Context {
	return context.WithValue(ctx, playerKey{}, player)
}

type playerClaims struct {
	Login string `json:"login"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 bearer tokens carrying the user id in "sub"
// and the display login in "login".
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SignToken mints a token for player. A non-positive ttl yields a token without expiry.
func (a *Authenticator) SignToken(player domain.Player) (string, error) {
	now := a.now()
	claims := playerClaims{
		Login: player.Login,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  player.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies raw and returns the player it identifies.
func (a *Authenticator) Parse(raw string) (domain.Player, error) {
	var claims playerClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return domain.Player{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return domain.Player{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.Player{}, errors.New("token missing subject")
	}
	login := claims.Login
	if login == "" {
		login = claims.Subject
	}
	return domain.Player{ID: claims.Subject, Login: login}, nil
}

// Middleware rejects requests without a valid bearer token. Browsers cannot set headers on
// websocket handshakes, so the token is also accepted as the access_token query parameter.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}
		player, err := a.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPlayer(r.Context(), player)))
	})
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
			return strings.TrimSpace(header[len(prefix):])
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
