package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

type userIDContextKey struct{}

func userIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userID, _ := ctx.Value(userIDContextKey{}).(string)
	return userID
}

// authenticator resolves the calling user. In jwt mode the subject of an
// HS256 bearer token is the user id; in header mode a trusted gateway sets
// it directly.
type authenticator struct {
	mode   string
	secret []byte
	issuer string
	header string
}

func newAuthenticator(mode, secret, issuer, header string) (*authenticator, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case AuthModeJWT:
		if strings.TrimSpace(secret) == "" {
			return nil, errors.New("jwt auth mode requires JWT_SECRET")
		}
	case AuthModeHeader:
		if strings.TrimSpace(header) == "" {
			header = "X-User-Id"
		}
	default:
		return nil, errors.New("unsupported auth mode " + mode)
	}
	return &authenticator{mode: mode, secret: []byte(secret), issuer: issuer, header: header}, nil
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.resolve(r)
		if err != nil {
			writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", err))
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *authenticator) resolve(r *http.Request) (string, error) {
	if a.mode == AuthModeHeader {
		userID := strings.TrimSpace(r.Header.Get(a.header))
		if userID == "" {
			return "", errors.New("missing user header")
		}
		return userID, nil
	}

	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return "", errors.New("missing bearer token")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token, token != ""
}
