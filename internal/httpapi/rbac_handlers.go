package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"authcore.org/internal/audit"
	"authcore.org/internal/auth"
)

type groupView struct {
	ID     *int64 `json:"id,omitempty"`
	Name   string `json:"name"`
	System bool   `json:"system,omitempty"`
}

type groupRequest struct {
	Name string `json:"name"`
}

func newGroupView(g auth.Group, showID bool) groupView {
	v := groupView{Name: g.Name}
	if showID {
		id := g.ID
		v.ID = &id
		v.System = g.System
	}
	return v
}

func groupViews(groups []auth.Group, showID bool) []groupView {
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, newGroupView(g, showID))
	}
	return out
}

func (a *API) groupList(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	q := listQuery(r, auth.GroupSortFields, "name")
	page, err := a.svc.ListGroups(r.Context(), q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	showID := p.HasAny(auth.GroupListIDVisibility...).OK
	a.send(w, CodeOK, auth.MapPage(page, func(g auth.Group) groupView {
		return newGroupView(g, showID)
	}), "Successfully retrieved group list")
}

func (a *API) groupShow(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	g, err := a.svc.Group(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, newGroupView(g, p.HasAny(auth.GroupViewIDVisibility...).OK), "Successfully retrieved group data")
}

func (a *API) groupCreate(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	g, err := a.svc.CreateGroup(r.Context(), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.GroupCreated, map[string]any{"group_id": g.ID, "name": g.Name})
	a.send(w, CodeCreated, newGroupView(g, true), "Successfully created group")
}

func (a *API) groupRename(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	g, err := a.svc.RenameGroup(r.Context(), id, req.Name)
	if errors.Is(err, auth.ErrNoChange) {
		a.send(w, CodeNoChange, newGroupView(g, true), "")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.GroupRenamed, map[string]any{"group_id": g.ID, "name": g.Name})
	a.send(w, CodeModified, newGroupView(g, true), "Successfully updated group")
}

func (a *API) groupDelete(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.DeleteGroup(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.GroupDeleted, map[string]any{"group_id": id})
	a.send(w, CodeDeleted, nil, "")
}

func (a *API) groupUsers(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := listQuery(r, auth.UserSortFields, "email", "name", "firstname")
	page, err := a.svc.GroupMembers(r.Context(), id, q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	showID := p.HasAny(auth.UserIDVisibility...).OK
	a.send(w, CodeOK, auth.MapPage(page, func(u auth.User) userView {
		return newUserView(u, showID)
	}), "Successfully retrieved the group's users list")
}

func (a *API) groupSetUsers(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req struct {
		Users membershipRequest `json:"users"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	add, del, err := req.Users.ids()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	saved, err := a.svc.SetGroupUsers(r.Context(), p.User.ID, id, add, del)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.GroupUsersSet, map[string]any{
		"group_id": id,
		"add":      add,
		"del":      del,
	})
	list := make([]userView, 0, len(saved))
	for _, u := range saved {
		list = append(list, newUserView(u, true))
	}
	a.send(w, CodeModified, map[string]any{"saved": list}, "Successfully edited group users")
}

func (a *API) groupPermission(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	set, err := a.svc.GroupPermissions(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, set, "Successfully retrieved the group's permissions list")
}

// groupPermissionSnapshot reads group ids from ?groups=1,2 or from a
// {"groups": [...]} body.
func (a *API) groupPermissionSnapshot(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var ids []int64
	if raw := strings.TrimSpace(r.URL.Query().Get("groups")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil && id > 0 {
				ids = append(ids, id)
			}
		}
	} else if r.ContentLength != 0 {
		var req struct {
			Groups json.RawMessage `json:"groups"`
		}
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		var err error
		if ids, err = auth.ParseIDList(req.Groups); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	set, err := a.svc.PermissionSnapshot(r.Context(), ids)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, set, "Successfully retrieved groups permission list")
}

func (a *API) groupSetPermission(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req map[string][]string
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	saved, err := a.svc.SetGroupPermissions(r.Context(), p.User.ID, id, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.GroupPermissionsSet, map[string]any{
		"group_id":    id,
		"permissions": saved,
	})
	a.send(w, CodeModified, map[string]any{"saved": saved}, "Successfully edited group permissions")
}

func (a *API) permissionList(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	set, err := a.svc.CatalogSet(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.send(w, CodeOK, set, "Successfully retrieved list of available permissions")
}
