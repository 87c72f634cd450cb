package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "user read", role: RoleUser, action: ActionRead, allow: true},
		{name: "user report", role: RoleUser, action: ActionReport, allow: true},
		{name: "user claim", role: RoleUser, action: ActionClaim, allow: true},
		{name: "user resolve", role: RoleUser, action: ActionResolve, allow: false},
		{name: "user verify", role: RoleUser, action: ActionVerify, allow: false},
		{name: "user admin", role: RoleUser, action: ActionAdmin, allow: false},
		{name: "admin resolve", role: RoleAdmin, action: ActionResolve, allow: true},
		{name: "admin verify", role: RoleAdmin, action: ActionVerify, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Fatal("admin should normalize to RoleAdmin")
	}
	if Normalize("something-else") != RoleUser {
		t.Fatal("unknown roles should normalize to RoleUser")
	}
}
