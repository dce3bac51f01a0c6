package rbac

import "testing"

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "test:view", true},
		{"student", "attempt:create", true},
		{"student", "test:view-keys", false},
		{"student", "attempt:grade", false},
		{"instructor", "test:publish", true},
		{"instructor", "attempt:view-all", true},
		{"instructor", "users:bulk_upsert", true},
		{"admin", "anything:at-all", true},
		{"", "test:view", false},
		{"unknown-role", "test:view", false},
	}
	for _, tc := range cases {
		if got := Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestWildcardPrefix(t *testing.T) {
	c := NewChecker(map[string][]string{"auditor": {"attempt:*"}})
	if !c.Has("auditor", "attempt:view-all") {
		t.Fatal("prefix wildcard should match")
	}
	if c.Has("auditor", "test:view") {
		t.Fatal("prefix wildcard must not match other prefixes")
	}
	if !c.Any("auditor", "test:view", "attempt:grade") {
		t.Fatal("Any should pass when one permission matches")
	}
}
