package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/tracker-core/internal/testutil"
	"github.com/nerrad567/tracker-core/internal/user"
)

func TestRegistry_GetByID(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	aside, _ := testutil.NewCache(t)
	reg := user.NewRegistry(user.NewSQLiteRepository(db), aside)

	id := testutil.InsertUser(t, db, testutil.UserRow{FirstName: "Ada", MaxDevice: 2})

	t.Run("reads through and caches", func(t *testing.T) {
		u, err := reg.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if u.MaxDevice != 2 || u.MaxFencePerDevice != user.NoOverride {
			t.Errorf("limits = %d/%d, want 2/-1", u.MaxDevice, u.MaxFencePerDevice)
		}

		// A change behind the cache is invisible until invalidated.
		testutil.SetUserLimits(t, db, id, 5, -1)
		u, _ = reg.GetByID(ctx, id) //nolint:errcheck // Checked above
		if u.MaxDevice != 2 {
			t.Errorf("MaxDevice = %d, want cached 2", u.MaxDevice)
		}

		reg.Invalidate(ctx, id)
		u, err = reg.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID() after invalidate error = %v", err)
		}
		if u.MaxDevice != 5 {
			t.Errorf("MaxDevice = %d, want 5 after invalidate", u.MaxDevice)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := reg.GetByID(ctx, "usr-missing")
		if !errors.Is(err, user.ErrUserNotFound) {
			t.Errorf("GetByID() error = %v, want ErrUserNotFound", err)
		}
	})
}

func TestRegistry_UpdateLimits(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	aside, _ := testutil.NewCache(t)
	reg := user.NewRegistry(user.NewSQLiteRepository(db), aside)

	id := testutil.InsertUser(t, db, testutil.UserRow{MaxDevice: 2})
	if _, err := reg.GetByID(ctx, id); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	updated, err := reg.UpdateLimits(ctx, id, 3, 5)
	if err != nil {
		t.Fatalf("UpdateLimits() error = %v", err)
	}
	if updated.MaxDevice != 3 || updated.MaxFencePerDevice != 5 {
		t.Errorf("UpdateLimits() = %d/%d, want 3/5", updated.MaxDevice, updated.MaxFencePerDevice)
	}

	// The cached copy is replaced, no Invalidate needed.
	u, err := reg.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if u.MaxDevice != 3 || u.MaxFencePerDevice != 5 {
		t.Errorf("cached limits = %d/%d, want 3/5", u.MaxDevice, u.MaxFencePerDevice)
	}

	if _, err := reg.UpdateLimits(ctx, id, user.MaxDeviceOverride+1, 0); !errors.Is(err, user.ErrInvalidLimit) {
		t.Errorf("UpdateLimits() out of range error = %v, want ErrInvalidLimit", err)
	}
	if _, err := reg.UpdateLimits(ctx, "usr-missing", 1, 1); !errors.Is(err, user.ErrUserNotFound) {
		t.Errorf("UpdateLimits() unknown user error = %v, want ErrUserNotFound", err)
	}

	u, _ = reg.GetByID(ctx, id) //nolint:errcheck // Checked above
	if u.MaxDevice != 3 {
		t.Errorf("rejected update changed MaxDevice to %d", u.MaxDevice)
	}
}

func TestValidateLimits(t *testing.T) {
	tests := []struct {
		name              string
		maxDevice, maxFPD int
		wantErr           bool
	}{
		{"no overrides", user.NoOverride, user.NoOverride, false},
		{"zero", 0, 0, false},
		{"upper bounds", user.MaxDeviceOverride, user.MaxFencePerDeviceOverride, false},
		{"device below", -2, 0, true},
		{"device above", user.MaxDeviceOverride + 1, 0, true},
		{"fence below", 0, -2, true},
		{"fence above", 0, user.MaxFencePerDeviceOverride + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := user.ValidateLimits(tt.maxDevice, tt.maxFPD)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLimits(%d, %d) error = %v, wantErr %v", tt.maxDevice, tt.maxFPD, err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_AdminEmails(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	aside, _ := testutil.NewCache(t)
	reg := user.NewRegistry(user.NewSQLiteRepository(db), aside)

	testutil.InsertUser(t, db, testutil.UserRow{ID: "usr-a", Email: "ops@example.com", Role: "admin"})
	testutil.InsertUser(t, db, testutil.UserRow{ID: "usr-b", Email: "driver@example.com"})
	testutil.InsertUser(t, db, testutil.UserRow{ID: "usr-c", Email: "boss@example.com", Role: "admin"})

	emails, err := reg.AdminEmails(ctx)
	if err != nil {
		t.Fatalf("AdminEmails() error = %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("AdminEmails() = %v, want 2 admins", emails)
	}
	for _, e := range emails {
		if e == "driver@example.com" {
			t.Error("non-admin e-mail returned")
		}
	}
}

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		u    user.User
		want string
	}{
		{user.User{FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{user.User{FirstName: "Ada"}, "Ada"},
		{user.User{LastName: "Lovelace"}, "Lovelace"},
	}
	for _, tt := range tests {
		if got := tt.u.FullName(); got != tt.want {
			t.Errorf("FullName() = %q, want %q", got, tt.want)
		}
	}
}
