package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/pawlog/internal/auth"
)

// Authenticate resolves the bearer token into an auth.AuthContext. With a nil
// issuer the server runs in local mode: every request acts as the local actor
// with access to all pets. Browsers that cannot set headers on websocket
// upgrades may pass the token as the access_token query parameter.
func Authenticate(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if issuer == nil {
				ac := auth.AuthContext{Actor: auth.LocalActor, AllPets: true}
				setActor(r, ac.Actor)
				next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
				return
			}

			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			ac, err := issuer.Parse(token)
			if err != nil {
				unauthorized(w, "invalid bearer token")
				return
			}

			setActor(r, ac.Actor)
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequirePet rejects requests for a {pet} the caller was not granted. It must
// wrap a handler registered with a {pet} path wildcard.
func RequirePet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.CanAccess(r.Context(), r.PathValue("pet")) {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="pawlog"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
