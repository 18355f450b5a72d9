package hooks

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/morezero/operations-host/pkg/registry"
	"github.com/morezero/operations-host/pkg/reqctx"
)

// BearerAuth validates an HS256 JWT from the Authorization header. Valid
// claims are stored in the environment bag under EnvClaims and the subject
// under EnvSubject. Routes in skipPaths are not checked.
type BearerAuth struct {
	secret    []byte
	skipPaths map[string]bool
}

// NewBearerAuth creates a BearerAuth hook.
func NewBearerAuth(secret []byte, skipPaths []string) (*BearerAuth, error) {
	if len(secret) == 0 {
		return nil, errors.New("hooks:auth - empty JWT secret")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[registry.NormalizePath(p)] = true
	}
	return &BearerAuth{secret: secret, skipPaths: skip}, nil
}

// Before implements PreHook.
func (a *BearerAuth) Before(rc *reqctx.RequestContext) (*Reply, error) {
	if a.skipPaths[rc.RoutePath] {
		return nil, nil
	}

	header := rc.Header.Get("Authorization")
	if header == "" {
		return a.deny(rc, "missing Authorization header"), nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return a.deny(rc, "invalid Authorization header format"), nil
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		slog.Debug(fmt.Sprintf("hooks:auth - token rejected for %s: %v", rc.RoutePath, err))
		return a.deny(rc, "invalid token"), nil
	}

	rc.SetEnv(EnvClaims, claims)
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		rc.SetEnv(EnvSubject, sub)
	}
	return nil, nil
}

func (a *BearerAuth) deny(rc *reqctx.RequestContext, msg string) *Reply {
	reply := NewErrorReply(http.StatusUnauthorized, CodeUnauthorized, msg, rc.CorrelationID)
	reply.Header = http.Header{"Www-Authenticate": []string{"Bearer"}}
	return reply
}
