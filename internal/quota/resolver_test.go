package quota

import (
	"context"
	"testing"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/siteconfig"
	"github.com/nerrad567/tracker-core/internal/testutil"
	"github.com/nerrad567/tracker-core/internal/user"
)

type fixture struct {
	db       *database.DB
	resolver *Resolver
	users    *user.Registry
	settings *siteconfig.Resolver
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	aside, _ := testutil.NewCache(t)
	users := user.NewRegistry(user.NewSQLiteRepository(db), aside)
	settings := siteconfig.NewResolver(siteconfig.NewSQLiteRepository(db), aside, users)
	devices := device.NewRegistry(device.NewSQLitePoolRepository(db), device.NewSQLiteRepository(db), aside)
	return fixture{
		db:       db,
		resolver: NewResolver(users, settings, devices),
		users:    users,
		settings: settings,
	}
}

func (f fixture) setGlobal(t *testing.T, key, value string) {
	t.Helper()
	if _, err := f.settings.Upsert(context.Background(), key, value); err != nil {
		t.Fatalf("Upsert(%s) error = %v", key, err)
	}
}

func TestResolver_DeviceLimitPrecedence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deferring := testutil.InsertUser(t, f.db, testutil.UserRow{})
	capped := testutil.InsertUser(t, f.db, testutil.UserRow{MaxDevice: 4})

	limit, err := f.resolver.DeviceLimit(ctx, deferring)
	if err != nil || !limit.IsUnlimited() {
		t.Errorf("no override, no setting: DeviceLimit() = %d, %v; want unlimited", limit, err)
	}

	f.setGlobal(t, siteconfig.KeyMaxDevicePerUser, "2")
	if limit, _ := f.resolver.DeviceLimit(ctx, deferring); limit != 2 { //nolint:errcheck // Checked above
		t.Errorf("global setting: DeviceLimit() = %d, want 2", limit)
	}
	if limit, _ := f.resolver.DeviceLimit(ctx, capped); limit != 4 { //nolint:errcheck // Checked above
		t.Errorf("user override: DeviceLimit() = %d, want 4", limit)
	}

	f.setGlobal(t, siteconfig.KeyMaxDevicePerUser, "-1")
	if limit, _ := f.resolver.DeviceLimit(ctx, deferring); !limit.IsUnlimited() { //nolint:errcheck // Checked above
		t.Errorf("global -1: DeviceLimit() = %d, want unlimited", limit)
	}

	if _, err := f.resolver.DeviceLimit(ctx, "nobody"); !apperror.Is(err, apperror.NotFound) {
		t.Errorf("unknown user error = %v, want not_found", err)
	}
}

func TestResolver_RemainingDevices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{MaxDevice: 2})
	testutil.InsertDevice(t, f.db, testutil.DeviceRow{Serial: "VT-Q-1", UserID: owner, AssignStatus: "assigned", Status: "active"})
	testutil.InsertDevice(t, f.db, testutil.DeviceRow{Serial: "VT-Q-2", UserID: owner, AssignStatus: "pending_approval"})

	usage, err := f.resolver.RemainingDevices(ctx, owner)
	if err != nil {
		t.Fatalf("RemainingDevices() error = %v", err)
	}
	if usage.Used != 2 || usage.Remaining() != 0 || !usage.Exhausted() {
		t.Errorf("usage = %+v remaining %d", usage, usage.Remaining())
	}

	// Raising the override takes effect once the cached user is dropped.
	testutil.SetUserLimits(t, f.db, owner, 3, -1)
	f.users.Invalidate(ctx, owner)
	usage, err = f.resolver.RemainingDevices(ctx, owner)
	if err != nil || usage.Remaining() != 1 || usage.Exhausted() {
		t.Errorf("after raise: usage = %+v, %v", usage, err)
	}
}

func TestResolver_FenceLimitPrecedence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deferring := testutil.InsertUser(t, f.db, testutil.UserRow{})
	capped := testutil.InsertUser(t, f.db, testutil.UserRow{MaxFencePerDevice: 3})

	tests := []struct {
		name   string
		global string
		device device.Device
		want   Limit
	}{
		{
			name:   "device override wins",
			global: "10",
			device: device.Device{MaxFence: 1, UserID: &capped},
			want:   1,
		},
		{
			name:   "owner override next",
			global: "10",
			device: device.Device{MaxFence: -1, UserID: &capped},
			want:   3,
		},
		{
			name:   "global when owner defers",
			global: "10",
			device: device.Device{MaxFence: -1, UserID: &deferring},
			want:   10,
		},
		{
			name:   "global for unowned device",
			global: "7",
			device: device.Device{MaxFence: -1},
			want:   7,
		},
		{
			name:   "unlimited at the bottom",
			global: "-1",
			device: device.Device{MaxFence: -1, UserID: &deferring},
			want:   Unlimited,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.setGlobal(t, siteconfig.KeyMaxGeoFencePerDevice, tt.global)
			got, err := f.resolver.FenceLimit(ctx, &tt.device)
			if err != nil {
				t.Fatalf("FenceLimit() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FenceLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolver_RemainingFences(t *testing.T) {
	f := newFixture(t)
	f.setGlobal(t, siteconfig.KeyMaxGeoFencePerDevice, "2")

	d := &device.Device{MaxFence: -1, AttachedGeoFences: []string{"f1", "f2"}}
	usage, err := f.resolver.RemainingFences(context.Background(), d)
	if err != nil {
		t.Fatalf("RemainingFences() error = %v", err)
	}
	if !usage.Exhausted() || usage.Remaining() != 0 {
		t.Errorf("usage = %+v", usage)
	}

	d.AttachedGeoFences = d.AttachedGeoFences[:1]
	usage, _ = f.resolver.RemainingFences(context.Background(), d) //nolint:errcheck // Checked above
	if usage.Exhausted() || usage.Remaining() != 1 {
		t.Errorf("usage with one fence = %+v", usage)
	}
}
