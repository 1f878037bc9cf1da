package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/thinhgangg/medibook/internal/model"
	"github.com/thinhgangg/medibook/libs/auth"
	"github.com/thinhgangg/medibook/libs/httpx"
)

type actorKey struct{}

// WithActor resolves the Bearer token into a model.Actor and stores it on
// the request context. Requests without a valid token are rejected here;
// ownership checks still happen inside the services.
func WithActor(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerify(strings.TrimSpace(token), secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			actor := model.Actor{
				ID:        claims.Subject,
				Role:      model.Role(claims.Role),
				DoctorID:  claims.DoctorID,
				PatientID: claims.PatientID,
			}
			switch actor.Role {
			case model.RolePatient, model.RoleDoctor, model.RoleAdmin:
			default:
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
		})
	}
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(model.Actor)
	return actor, ok
}
