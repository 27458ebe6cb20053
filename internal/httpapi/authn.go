package httpapi

import (
	"net/http"
	"strings"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var (
	userRead              = permission.P(auth.ResourceUser, permission.Read)
	userUpdate            = permission.P(auth.ResourceUser, permission.Update)
	userDelete            = permission.P(auth.ResourceUser, permission.Delete)
	activityRead          = permission.P(auth.ResourceUserActivity, permission.Read)
	activityDelete        = permission.P(auth.ResourceUserActivity, permission.Delete)
	userPermissionRead    = permission.P(auth.ResourceUserPermission, permission.Read)
	userGroupRead         = permission.P(auth.ResourceUserGroup, permission.Read)
	userGroupUpdate       = permission.P(auth.ResourceUserGroup, permission.Update)
	groupRead             = permission.P(auth.ResourceGroup, permission.Read)
	groupCreate           = permission.P(auth.ResourceGroup, permission.Create)
	groupUpdate           = permission.P(auth.ResourceGroup, permission.Update)
	groupDelete           = permission.P(auth.ResourceGroup, permission.Delete)
	groupPermissionRead   = permission.P(auth.ResourceGroupPermission, permission.Read)
	groupPermissionUpdate = permission.P(auth.ResourceGroupPermission, permission.Update)
	permissionRead        = permission.P(auth.ResourcePermission, permission.Read)
)

// guard inspects the authenticated principal before a handler runs.
type guard func(p auth.Principal, r *http.Request) error

type principalHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// requireAll passes when the principal holds every pair.
func requireAll(pairs ...permission.Pair) guard {
	return func(p auth.Principal, _ *http.Request) error {
		return auth.MissingPermissions(p.HasAll(pairs...))
	}
}

// selfOrAll passes when the path id is the principal's own, or when it
// holds every pair.
func selfOrAll(pairs ...permission.Pair) guard {
	all := requireAll(pairs...)
	return func(p auth.Principal, r *http.Request) error {
		if id, err := pathID(r); err == nil && p.IsSelf(id) {
			return nil
		}
		return all(p, r)
	}
}

// authed verifies the bearer token, loads the principal and runs guards.
func (a *API) authed(next principalHandler, guards ...guard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			a.send(w, CodeNotAcceptable, nil, "No token provided")
			return
		}
		p, err := a.svc.Authenticate(r.Context(), token)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		for _, g := range guards {
			if err := g(p, r); err != nil {
				a.fail(w, r, err)
				return
			}
		}
		next(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)), p)
	})
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if len(header) >= len(bearer) && strings.EqualFold(header[:len(bearer)], bearer) {
		header = header[len(bearer):]
	}
	token := strings.TrimSpace(header)
	return token, token != ""
}
