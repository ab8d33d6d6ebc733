package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectContextKey contextKey = "subject"

// withAuth requires an HS256-signed JWT in the Authorization header or, for
// WebSocket upgrades from browsers, in the token query parameter. An empty
// secret disables authentication.
func withAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tokenString, ok := bearerToken(req)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			subject, _ := token.Claims.GetSubject()
			ctx := context.WithValue(req.Context(), subjectContextKey, subject)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func bearerToken(req *http.Request) (string, bool) {
	if h := req.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := req.URL.Query().Get("token"); t != "" {
		return t, true
	}
	return "", false
}

// subjectFrom returns the authenticated subject, empty when auth is off.
func subjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(subjectContextKey).(string)
	return s
}
