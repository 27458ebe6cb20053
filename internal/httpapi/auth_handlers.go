package httpapi

import (
	"net/http"
	"strings"

	"authcore.org/internal/audit"
	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type renewRequest struct {
	RenewToken string `json:"renew_token"`
}

type passwordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

type profileView struct {
	ID          int64          `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	Firstname   string         `json:"firstname"`
	Groups      []string       `json:"groups"`
	Permissions permission.Set `json:"permissions"`
}

type sessionView struct {
	profileView
	auth.TokenPair
}

func newProfile(u auth.User, groups []auth.Group, perms permission.Set) profileView {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	if perms == nil {
		perms = permission.Set{}
	}
	return profileView{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Firstname:   u.Firstname,
		Groups:      names,
		Permissions: perms,
	}
}

func newSessionView(s auth.Session) sessionView {
	return sessionView{
		profileView: newProfile(s.User, s.Groups, s.Permissions),
		TokenPair:   s.Tokens,
	}
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	if !a.allow(w, r, a.opts.Register, clientIP(r), a.opts.RegisterWindow,
		"Too many accounts created from this IP, please try again later") {
		return
	}
	var req auth.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.svc.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.Register, map[string]any{
		"user_id": u.ID,
		"email":   u.Email,
	})
	a.send(w, CodeCreated, newUserView(u, true), "User registered successfully")
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if !a.allow(w, r, a.opts.Login, clientIP(r), a.opts.LoginWindow, "") {
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	s, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), audit.LoginFailed, map[string]any{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		})
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, newSessionView(s), "Successfully logged in")
}

func (a *API) renew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	s, err := a.svc.Renew(r.Context(), req.RenewToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, newSessionView(s), "Token renewed")
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	s, err := a.svc.ChangePassword(r.Context(), p.User.ID, req.Password, req.NewPassword)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.PasswordChanged, nil)
	a.send(w, CodeModified, newSessionView(s), "Password successfully modified. All other sessions were disconnected.")
}

func (a *API) whoami(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	a.send(w, CodeOK, newProfile(p.User, p.Groups, p.Permissions), "User info successfully retrieved")
}
