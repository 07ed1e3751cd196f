package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRoleSatisfies(t *testing.T) {
	cases := []struct {
		role     Role
		required []Role
		want     bool
	}{
		{RoleOwner, []Role{RoleAdmin}, true},
		{RoleOwner, []Role{RoleContributor}, true},
		{RoleAdmin, []Role{RoleContributor}, true},
		{RoleAdmin, []Role{RoleAdmin}, true},
		{RoleAdmin, []Role{RoleOwner}, false},
		{RoleContributor, []Role{RoleAdmin}, false},
		{RoleContributor, []Role{RoleContributor, RoleAdmin}, true},
		{Role("banker"), []Role{RoleContributor}, false},
		{RoleContributor, nil, true},
	}
	for _, c := range cases {
		if got := c.role.Satisfies(c.required); got != c.want {
			t.Errorf("%s.Satisfies(%v) = %v, want %v", c.role, c.required, got, c.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	if err != nil || r != RoleAdmin {
		t.Fatalf("ParseRole = %q, %v", r, err)
	}
	if _, err := ParseRole("root"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("ParseRole(root) err = %v, want ErrInvalidRole", err)
	}
}

func TestValidateAmount(t *testing.T) {
	for _, amount := range []int64{0, -1, 1001} {
		if err := ValidateAmount(amount, 1000); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ValidateAmount(%d) = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if err := ValidateAmount(1000, 1000); err != nil {
		t.Errorf("ValidateAmount(1000) = %v", err)
	}
	if err := ValidateAmount(1<<40, 0); err != nil {
		t.Errorf("ValidateAmount without cap = %v", err)
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("withdraw 7: %w", ErrInsufficientFunds)
	if got := CodeOf(wrapped); got != CodeInsufficientFunds {
		t.Fatalf("CodeOf = %s", got)
	}
	if got := CodeOf(ErrNotSharedAccount); got != CodeInvalidInput {
		t.Fatalf("CodeOf(ErrNotSharedAccount) = %s", got)
	}
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Fatalf("CodeOf(unknown) = %s", got)
	}
	if IsDomainError(errors.New("driver: bad connection")) {
		t.Fatal("driver error should not be a domain error")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{12345: "123.45", 5: "0.05", 0: "0.00", -250: "-2.50"}
	for minor, want := range cases {
		if got := FormatAmount(minor, 2); got != want {
			t.Errorf("FormatAmount(%d) = %s, want %s", minor, got, want)
		}
	}
	if got := FormatAmount(42, 0); got != "42" {
		t.Errorf("FormatAmount scale 0 = %s", got)
	}
}
