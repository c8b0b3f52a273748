package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	contextKeyActorID contextKey = "actorID"
	contextKeyRole    contextKey = "role"

	roleReviewer = "reviewer"
)

// requireAuth validates the bearer token and stashes the acting identity in
// the request context. Reviewer identity for settlement always comes from the
// token subject, never from the request body.
func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get("Authorization")
			if authHeader == "" {
				writeError(writer, http.StatusUnauthorized, "unauthorized", "authorization header required", nil)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(writer, http.StatusUnauthorized, "unauthorized", "invalid authorization header format", nil)
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeError(writer, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(writer, http.StatusUnauthorized, "unauthorized", "invalid token claims", nil)
				return
			}
			subject, _ := claims.GetSubject()
			if subject == "" {
				writeError(writer, http.StatusUnauthorized, "unauthorized", "token missing subject", nil)
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(request.Context(), contextKeyActorID, subject)
			ctx = context.WithValue(ctx, contextKeyRole, role)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// requireReviewer gates settlement endpoints on the reviewer role claim.
func requireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		role, _ := request.Context().Value(contextKeyRole).(string)
		if role != roleReviewer {
			writeError(writer, http.StatusForbidden, "forbidden", "reviewer role required", nil)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(contextKeyActorID).(string)
	return actor
}
