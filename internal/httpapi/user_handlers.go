package httpapi

import (
	"encoding/json"
	"net/http"

	"authcore.org/internal/audit"
	"authcore.org/internal/auth"
)

type userView struct {
	ID        *int64 `json:"id,omitempty"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Firstname string `json:"firstname"`
}

func newUserView(u auth.User, showID bool) userView {
	v := userView{Email: u.Email, Name: u.Name, Firstname: u.Firstname}
	if showID {
		id := u.ID
		v.ID = &id
	}
	return v
}

type membershipRequest struct {
	Add json.RawMessage `json:"add"`
	Del json.RawMessage `json:"del"`
}

// ids parses both lists; a missing list is empty.
func (m membershipRequest) ids() (add, del []int64, err error) {
	if add, err = auth.ParseIDList(m.Add); err != nil {
		return nil, nil, err
	}
	if del, err = auth.ParseIDList(m.Del); err != nil {
		return nil, nil, err
	}
	return add, del, nil
}

func (a *API) userList(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	q := listQuery(r, auth.UserSortFields, "email", "name", "firstname")
	showID := p.HasAny(auth.UserIDVisibility...).OK
	if showID {
		id, err := queryID(r, "id")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		q.ID = id
	}
	page, err := a.svc.ListUsers(r.Context(), q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, auth.MapPage(page, func(u auth.User) userView {
		return newUserView(u, showID)
	}), "Successfully retrieved user list")
}

func (a *API) userShow(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.svc.User(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	showID := p.IsSelf(id) || p.HasAny(auth.UserIDVisibility...).OK
	a.send(w, CodeOK, newUserView(u, showID), "Successfully retrieved user data")
}

func (a *API) userEdit(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var upd auth.UserUpdate
	if err := decodeJSON(r, &upd); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.svc.EditUser(r.Context(), id, upd)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.UserEdited, map[string]any{"target_id": id})
	a.send(w, CodeOK, newUserView(u, true), "Successfully edited user")
}

func (a *API) userDelete(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.DeleteUser(r.Context(), p.User.ID, id); err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.UserDeleted, map[string]any{"target_id": id})
	a.send(w, CodeDeleted, nil, "")
}

func (a *API) userRestore(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.svc.RestoreUser(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.UserRestored, map[string]any{"target_id": id})
	a.send(w, CodeModified, newUserView(u, true), "")
}

func (a *API) userActivity(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	all := p.HasAll(activityDelete).OK
	sessions, err := a.svc.Activity(r.Context(), id, all)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, map[string]any{"list": sessions}, "Successfully retrieved user activity")
}

func (a *API) userPermission(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	set, err := a.svc.UserPermissions(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, set, "Successfully retrieved user's permission list")
}

func (a *API) userGroups(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	groups, err := a.svc.UserGroups(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, map[string]any{"list": groupViews(groups, true)}, "Successfully retrieved user's group list")
}

func (a *API) userSetGroups(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req struct {
		Groups membershipRequest `json:"groups"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	add, del, err := req.Groups.ids()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	saved, err := a.svc.SetUserGroups(r.Context(), p.User.ID, id, add, del)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.UserGroupsSet, map[string]any{
		"target_id": id,
		"add":       add,
		"del":       del,
	})
	a.send(w, CodeOK, map[string]any{"saved": groupViews(saved, true)}, "Successfully edited user groups")
}
