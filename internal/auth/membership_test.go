package auth_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

func TestParseIDList(t *testing.T) {
	got, err := auth.ParseIDList(json.RawMessage(`[3, "4", -1, 0, "x", 2.5, null, 3, {"id":9}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]int64{3, 4}, got); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	if got, err := auth.ParseIDList(nil); err != nil || len(got) != 0 {
		t.Fatalf("missing list should be empty: %v %v", got, err)
	}

	_, err = auth.ParseIDList(json.RawMessage(`"1,2"`))
	expectKind(t, err, auth.KindInvalid)
	_, err = auth.ParseIDList(json.RawMessage(`{"a":1}`))
	expectKind(t, err, auth.KindInvalid)
}

func TestCancelOverlap(t *testing.T) {
	add, del := auth.CancelOverlap([]int64{1, 2, 3}, []int64{3, 4, 1})
	if diff := cmp.Diff([]int64{2}, add); diff != "" {
		t.Fatalf("add mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{4}, del); diff != "" {
		t.Fatalf("del mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanUserGroups(t *testing.T) {
	const userGroup, managers, admin, extra = 1, 2, 3, 4
	cases := []struct {
		name string
		plan auth.MembershipPlan
		want []int64
	}{
		{
			name: "removal then addition",
			plan: auth.MembershipPlan{Current: []int64{userGroup, managers}, Add: []int64{extra}, Del: []int64{managers}, UserGroupID: userGroup, AdminGroupID: admin},
			want: []int64{userGroup, extra},
		},
		{
			name: "user group is always kept",
			plan: auth.MembershipPlan{Current: []int64{userGroup}, Del: []int64{userGroup}, UserGroupID: userGroup, AdminGroupID: admin},
			want: []int64{userGroup},
		},
		{
			name: "non-admin cannot drop an admin",
			plan: auth.MembershipPlan{Current: []int64{userGroup, admin}, Del: []int64{admin}, UserGroupID: userGroup, AdminGroupID: admin},
			want: []int64{userGroup, admin},
		},
		{
			name: "admin cannot drop a protected admin",
			plan: auth.MembershipPlan{Current: []int64{userGroup, admin}, Del: []int64{admin}, UserGroupID: userGroup, AdminGroupID: admin, ActorIsAdmin: true, TargetProtected: true},
			want: []int64{userGroup, admin},
		},
		{
			name: "admin drops an unprotected admin",
			plan: auth.MembershipPlan{Current: []int64{userGroup, admin}, Del: []int64{admin}, UserGroupID: userGroup, AdminGroupID: admin, ActorIsAdmin: true},
			want: []int64{userGroup},
		},
		{
			name: "non-admin may grant admin",
			plan: auth.MembershipPlan{Current: []int64{userGroup}, Add: []int64{admin}, UserGroupID: userGroup, AdminGroupID: admin},
			want: []int64{userGroup, admin},
		},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, auth.PlanUserGroups(tc.plan)); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestSetUserGroupsRejectsSelfEdit(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@example.com", true, auth.AliasAdmin)
	_, err := f.svc.SetUserGroups(f.ctx, admin.ID, admin.ID, nil, []int64{f.group(auth.AliasAdmin).ID})
	expectKind(t, err, auth.KindForbidden)
	if !hasID(f.groupIDsOf(admin.ID), f.group(auth.AliasAdmin).ID) {
		t.Fatal("self edit must not change memberships")
	}
}

func TestSetUserGroupsAdminRules(t *testing.T) {
	f := newFixture(t)
	adminGroup := f.group(auth.AliasAdmin).ID
	managers := f.namedGroup("Users Manager").ID

	protectedAdmin := f.user("root@example.com", true, auth.AliasAdmin)
	admin := f.user("admin@example.com", false, auth.AliasAdmin)
	manager := f.user("manager@example.com", false)

	// non-admin actor cannot strip an admin
	if _, err := f.svc.SetUserGroups(f.ctx, manager.ID, admin.ID, nil, []int64{adminGroup}); err != nil {
		t.Fatalf("set groups: %v", err)
	}
	if !hasID(f.groupIDsOf(admin.ID), adminGroup) {
		t.Fatal("admin membership dropped by non-admin")
	}

	// admin cannot strip a protected admin
	if _, err := f.svc.SetUserGroups(f.ctx, admin.ID, protectedAdmin.ID, nil, []int64{adminGroup}); err != nil {
		t.Fatalf("set groups: %v", err)
	}
	if !hasID(f.groupIDsOf(protectedAdmin.ID), adminGroup) {
		t.Fatal("protected admin lost admin membership")
	}

	// protected admin strips an unprotected admin and adds another group,
	// unknown ids are ignored and the user group survives
	groups, err := f.svc.SetUserGroups(f.ctx, protectedAdmin.ID, admin.ID,
		[]int64{managers, 999}, []int64{adminGroup, f.group(auth.AliasUser).ID})
	if err != nil {
		t.Fatalf("set groups: %v", err)
	}
	got := make([]int64, 0, len(groups))
	for _, g := range groups {
		got = append(got, g.ID)
	}
	want := []int64{f.group(auth.AliasUser).ID, managers}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}

	_, err = f.svc.SetUserGroups(f.ctx, admin.ID, 12345, []int64{managers}, nil)
	expectKind(t, err, auth.KindNotFound)
}

func TestSetGroupUsers(t *testing.T) {
	f := newFixture(t)
	adminGroup := f.group(auth.AliasAdmin).ID
	managers := f.namedGroup("Users Manager").ID

	root := f.user("root@example.com", true, auth.AliasAdmin)
	admin := f.user("admin@example.com", false, auth.AliasAdmin)
	jo := f.user("jo@example.com", false)

	_, err := f.svc.SetGroupUsers(f.ctx, root.ID, managers, []int64{root.ID}, nil)
	expectKind(t, err, auth.KindForbidden)

	members, err := f.svc.SetGroupUsers(f.ctx, root.ID, managers, []int64{jo.ID, 999}, nil)
	if err != nil {
		t.Fatalf("add members: %v", err)
	}
	if len(members) != 1 || members[0].ID != jo.ID {
		t.Fatalf("unexpected members: %+v", members)
	}

	_, err = f.svc.SetGroupUsers(f.ctx, root.ID, managers, []int64{jo.ID}, nil)
	expectKind(t, err, auth.KindNoChange)

	// protected members of the admin group are never removed
	_, err = f.svc.SetGroupUsers(f.ctx, admin.ID, adminGroup, nil, []int64{root.ID})
	expectKind(t, err, auth.KindNoChange)

	// non-admin actors cannot remove admins
	_, err = f.svc.SetGroupUsers(f.ctx, jo.ID, adminGroup, nil, []int64{admin.ID})
	expectKind(t, err, auth.KindNoChange)

	// nobody leaves the user group
	_, err = f.svc.SetGroupUsers(f.ctx, root.ID, f.group(auth.AliasUser).ID, nil, []int64{jo.ID})
	expectKind(t, err, auth.KindNoChange)

	members, err = f.svc.SetGroupUsers(f.ctx, root.ID, adminGroup, nil, []int64{admin.ID})
	if err != nil {
		t.Fatalf("remove admin: %v", err)
	}
	if len(members) != 1 || members[0].ID != root.ID {
		t.Fatalf("unexpected admin members: %+v", members)
	}

	_, err = f.svc.SetGroupUsers(f.ctx, root.ID, 999, []int64{jo.ID}, nil)
	expectKind(t, err, auth.KindNotFound)
}

func TestSetGroupPermissions(t *testing.T) {
	f := newFixture(t)
	root := f.user("root@example.com", true, auth.AliasAdmin)
	admin := f.user("admin@example.com", false, auth.AliasAdmin)
	manager := f.user("manager@example.com", false)
	managers := f.namedGroup("Users Manager")
	if err := f.store.Users().SetGroups(f.ctx, manager.ID, []int64{f.group(auth.AliasUser).ID, managers.ID}); err != nil {
		t.Fatalf("set groups: %v", err)
	}

	_, err := f.svc.SetGroupPermissions(f.ctx, admin.ID, f.group(auth.AliasAdmin).ID, map[string][]string{})
	expectKind(t, err, auth.KindForbidden)

	_, err = f.svc.SetGroupPermissions(f.ctx, manager.ID, f.group(auth.AliasUser).ID, map[string][]string{
		auth.ResourceUser: {"read"},
	})
	expectKind(t, err, auth.KindForbidden)

	_, err = f.svc.SetGroupPermissions(f.ctx, admin.ID, managers.ID, map[string][]string{
		auth.ResourceUser: {"create"},
	})
	expectKind(t, err, auth.KindBadRequest)

	_, err = f.svc.SetGroupPermissions(f.ctx, manager.ID, managers.ID, map[string][]string{
		auth.ResourceGroup: {"delete"},
	})
	expectKind(t, err, auth.KindForbidden)

	set, err := f.svc.SetGroupPermissions(f.ctx, admin.ID, f.group(auth.AliasUser).ID, map[string][]string{
		auth.ResourcePermission: {"read"},
		auth.ResourceGroup:      {"read", "read"},
	})
	if err != nil {
		t.Fatalf("set permissions: %v", err)
	}
	want := permission.Set{
		auth.ResourcePermission: {permission.Read},
		auth.ResourceGroup:      {permission.Read},
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Fatalf("returned set mismatch (-want +got):\n%s", diff)
	}
	stored, err := f.svc.GroupPermissions(f.ctx, f.group(auth.AliasUser).ID)
	if err != nil {
		t.Fatalf("group permissions: %v", err)
	}
	if diff := cmp.Diff(want, stored); diff != "" {
		t.Fatalf("stored set mismatch (-want +got):\n%s", diff)
	}

	// a protected admin may edit the admin group; the set is replaced
	if _, err := f.svc.SetGroupPermissions(f.ctx, root.ID, f.group(auth.AliasAdmin).ID, map[string][]string{
		auth.ResourceUser: {"read"},
	}); err != nil {
		t.Fatalf("protected admin edit: %v", err)
	}
	adminSet, err := f.svc.GroupPermissions(f.ctx, f.group(auth.AliasAdmin).ID)
	if err != nil {
		t.Fatalf("group permissions: %v", err)
	}
	if diff := cmp.Diff(permission.Set{auth.ResourceUser: {permission.Read}}, adminSet); diff != "" {
		t.Fatalf("admin set mismatch (-want +got):\n%s", diff)
	}
}
