package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
)

// Claims は外部の認証基盤が発行するトークンのクレームです
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier はHS256で署名されたトークンを検証します
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier は新しいTokenVerifierを作成します
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify はトークンを検証し、ロールを閉じた列挙型に変換して返します
func (v *TokenVerifier) Verify(tokenStr string) (model.Identity, error) {
	if len(v.secret) == 0 {
		return model.Identity{}, model.NewUnauthorizedError("token verification is not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return model.Identity{}, model.NewUnauthorizedError("invalid token")
	}

	if claims.Subject == "" {
		return model.Identity{}, model.NewUnauthorizedError("token has no subject")
	}
	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return model.Identity{}, model.NewUnauthorizedError("token has an unknown role")
	}

	return model.Identity{Subject: claims.Subject, Role: role}, nil
}

// Issue はトークンを発行します。ローカル環境での動作確認とテストに使います
func (v *TokenVerifier) Issue(identity model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

type identityKey struct{}

// IdentityFrom は認証済みのIDを返します
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(model.Identity)
	return identity, ok
}

func withIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// authenticate は Authorization: Bearer <token> を検証します
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			h.writeError(w, r, model.NewUnauthorizedError("missing bearer token"))
			return
		}

		identity, err := h.verifier.Verify(tokenStr)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// require はロールが capability を持つ場合のみ next を呼び出します
func (h *Handler) require(c model.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			h.writeError(w, r, model.NewUnauthorizedError("missing identity"))
			return
		}
		if !identity.Role.Can(c) {
			h.writeError(w, r, model.NewForbiddenError("role "+identity.Role.String()+" cannot "+c.String()))
			return
		}
		next(w, r)
	}
}
