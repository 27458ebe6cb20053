package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"authcore.org/internal/permission"
)

// ParseIDList reads a JSON list of ids. A missing or null value is an
// empty list; any other non-array is rejected. Entries that are not
// positive integers, as numbers or numeric strings, are dropped.
func ParseIDList(raw json.RawMessage) ([]int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, &Error{Kind: KindInvalid, Message: "id list must be an array", Err: err}
	}
	out := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		var (
			id  int64
			err error
		)
		switch v := item.(type) {
		case json.Number:
			id, err = v.Int64()
		case string:
			id, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		default:
			continue
		}
		if err != nil || id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// CancelOverlap removes ids that appear in both lists from both lists.
func CancelOverlap(add, del []int64) ([]int64, []int64) {
	inAdd := toSet(add)
	inDel := toSet(del)
	keep := func(ids []int64, other map[int64]struct{}) []int64 {
		out := make([]int64, 0, len(ids))
		for _, id := range ids {
			if _, both := other[id]; !both {
				out = append(out, id)
			}
		}
		return out
	}
	return keep(add, inDel), keep(del, inAdd)
}

// MembershipPlan is the input of PlanUserGroups. Add and Del must already
// be resolved to existing groups.
type MembershipPlan struct {
	Current         []int64
	Add             []int64
	Del             []int64
	UserGroupID     int64
	AdminGroupID    int64
	ActorIsAdmin    bool
	TargetProtected bool
}

// PlanUserGroups computes a target's next group set: removals, then
// additions, then the invariants. The user-alias group is always kept.
// An existing admin membership survives when the actor is not an admin,
// or when the target is protected.
func PlanUserGroups(p MembershipPlan) []int64 {
	next := toSet(p.Current)
	for _, id := range p.Del {
		delete(next, id)
	}
	for _, id := range p.Add {
		next[id] = struct{}{}
	}
	if p.UserGroupID != 0 {
		next[p.UserGroupID] = struct{}{}
	}
	if p.AdminGroupID != 0 && contains(p.Current, p.AdminGroupID) && (!p.ActorIsAdmin || p.TargetProtected) {
		next[p.AdminGroupID] = struct{}{}
	}
	return sortedIDs(next)
}

// SetUserGroups edits the memberships of target on behalf of actor and
// returns the target's groups afterwards. Unknown group ids are ignored.
func (s *Service) SetUserGroups(ctx context.Context, actorID, targetID int64, add, del []int64) ([]Group, error) {
	if actorID == targetID {
		return nil, newError(KindForbidden, "cannot edit own groups")
	}
	add, del = CancelOverlap(add, del)

	var out []Group
	err := s.store.InTx(ctx, func(st Store) error {
		actorGroups, err := st.Users().Groups(ctx, actorID)
		if err != nil {
			return err
		}
		target, err := st.Users().Find(ctx, targetID)
		if err != nil {
			return err
		}
		current, err := st.Users().Groups(ctx, targetID)
		if err != nil {
			return err
		}
		toAdd, err := st.Groups().FindMany(ctx, add)
		if err != nil {
			return err
		}
		toDel, err := st.Groups().FindMany(ctx, del)
		if err != nil {
			return err
		}
		userGroup, err := aliasGroupID(ctx, st, AliasUser)
		if err != nil {
			return err
		}
		adminGroup, err := aliasGroupID(ctx, st, AliasAdmin)
		if err != nil {
			return err
		}

		next := PlanUserGroups(MembershipPlan{
			Current:         groupIDs(current),
			Add:             groupIDs(toAdd),
			Del:             groupIDs(toDel),
			UserGroupID:     userGroup,
			AdminGroupID:    adminGroup,
			ActorIsAdmin:    hasAlias(actorGroups, AliasAdmin),
			TargetProtected: target.Protected,
		})
		if err := st.Users().SetGroups(ctx, targetID, next); err != nil {
			return err
		}
		out, err = st.Users().Groups(ctx, targetID)
		return err
	})
	return out, err
}

// SetGroupUsers adds and removes members of a group on behalf of actor and
// returns the members afterwards. Removals that would break the alias
// group rules are ignored; if nothing is left to do the result is
// ErrNoChange.
func (s *Service) SetGroupUsers(ctx context.Context, actorID, groupID int64, add, del []int64) ([]User, error) {
	if contains(add, actorID) || contains(del, actorID) {
		return nil, newError(KindForbidden, "cannot edit own membership")
	}
	add, del = CancelOverlap(add, del)

	var out []User
	err := s.store.InTx(ctx, func(st Store) error {
		group, err := st.Groups().Find(ctx, groupID)
		if err != nil {
			return err
		}
		actorGroups, err := st.Users().Groups(ctx, actorID)
		if err != nil {
			return err
		}
		members, err := st.Groups().Members(ctx, groupID)
		if err != nil {
			return err
		}
		isMember := toSet(userIDs(members))

		addUsers, err := st.Users().FindMany(ctx, add)
		if err != nil {
			return err
		}
		delUsers, err := st.Users().FindMany(ctx, del)
		if err != nil {
			return err
		}

		var toAdd, toDel []int64
		for _, u := range addUsers {
			if _, ok := isMember[u.ID]; !ok {
				toAdd = append(toAdd, u.ID)
			}
		}
		actorIsAdmin := hasAlias(actorGroups, AliasAdmin)
		for _, u := range delUsers {
			if _, ok := isMember[u.ID]; !ok {
				continue
			}
			switch group.Alias {
			case AliasUser:
				continue
			case AliasAdmin:
				if u.Protected || !actorIsAdmin {
					continue
				}
			}
			toDel = append(toDel, u.ID)
		}
		if len(toAdd) == 0 && len(toDel) == 0 {
			return ErrNoChange
		}
		if err := st.Groups().RemoveUsers(ctx, groupID, toDel); err != nil {
			return err
		}
		if err := st.Groups().AddUsers(ctx, groupID, toAdd); err != nil {
			return err
		}
		out, err = st.Groups().Members(ctx, groupID)
		return err
	})
	return out, err
}

// SetGroupPermissions replaces a group's permissions. The admin-alias group
// may only be edited by a protected admin, the user-alias group by any
// admin. Every requested pair must exist in the catalog and be held by
// the actor.
func (s *Service) SetGroupPermissions(ctx context.Context, actorID, groupID int64, requested map[string][]string) (permission.Set, error) {
	var out permission.Set
	err := s.store.InTx(ctx, func(st Store) error {
		group, err := st.Groups().Find(ctx, groupID)
		if err != nil {
			return err
		}
		actorUser, err := st.Users().Find(ctx, actorID)
		if err != nil {
			return err
		}
		actor, err := principal(ctx, st, actorUser)
		if err != nil {
			return err
		}
		switch group.Alias {
		case AliasAdmin:
			if !actor.IsAdmin() || !actor.User.Protected {
				return newError(KindForbidden, "only protected administrators can edit this group")
			}
		case AliasUser:
			if !actor.IsAdmin() {
				return newError(KindForbidden, "only administrators can edit this group")
			}
		}

		catalog, err := st.Permissions().Catalog(ctx)
		if err != nil {
			return err
		}
		byPair := make(map[permission.Pair]Permission, len(catalog))
		for _, p := range catalog {
			byPair[p.Pair()] = p
		}

		var (
			perms   []Permission
			pairs   []permission.Pair
			unknown []string
		)
		for _, resource := range sortedKeys(requested) {
			for _, name := range requested[resource] {
				action, _ := permission.ParseAction(name)
				pair := permission.P(resource, action)
				entry, ok := byPair[pair]
				if !ok {
					unknown = append(unknown, resource+":"+name)
					continue
				}
				if contains(permissionIDs(perms), entry.ID) {
					continue
				}
				perms = append(perms, entry)
				pairs = append(pairs, pair)
			}
		}
		if len(unknown) > 0 {
			return &Error{
				Kind:    KindBadRequest,
				Message: "unknown permission(s): " + strings.Join(unknown, ", "),
				Data:    map[string]any{"list": unknown},
			}
		}
		if res := permission.HasAll(actor.Permissions, pairs); !res.OK {
			return &Error{
				Kind:    KindForbidden,
				Message: "cannot grant permissions you do not hold",
				Data:    map[string]any{"list": res.Missing},
			}
		}

		if err := st.Groups().SetPermissions(ctx, groupID, perms); err != nil {
			return err
		}
		out = permission.FromPairs(pairs)
		return nil
	})
	return out, err
}

func aliasGroupID(ctx context.Context, st Store, alias string) (int64, error) {
	g, err := st.Groups().FindByAlias(ctx, alias)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return 0, nil
		}
		return 0, err
	}
	return g.ID, nil
}

func toSet(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func userIDs(users []User) []int64 {
	out := make([]int64, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func permissionIDs(perms []Permission) []int64 {
	out := make([]int64, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.ID)
	}
	return out
}
