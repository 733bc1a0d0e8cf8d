package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/geofence"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/notify"
	"github.com/nerrad567/tracker-core/internal/paging"
	"github.com/nerrad567/tracker-core/internal/quota"
	"github.com/nerrad567/tracker-core/internal/siteconfig"
	"github.com/nerrad567/tracker-core/internal/testutil"
	"github.com/nerrad567/tracker-core/internal/user"
)

type fixture struct {
	db      *database.DB
	svc     *Service
	outbox  *notify.Outbox
	users   *user.Registry
	fences  *geofence.Registry
	devices *device.SQLiteRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	aside, _ := testutil.NewCache(t)

	users := user.NewRegistry(user.NewSQLiteRepository(db), aside)
	settings := siteconfig.NewResolver(siteconfig.NewSQLiteRepository(db), aside, users)
	pools := device.NewSQLitePoolRepository(db)
	devices := device.NewSQLiteRepository(db)
	registry := device.NewRegistry(pools, devices, aside)
	fenceRepo := geofence.NewSQLiteRepository(db)
	fences := geofence.NewRegistry(fenceRepo, aside)
	outbox := notify.NewOutbox(32)

	svc, err := New(Deps{
		DB:            db,
		Pools:         pools,
		Devices:       devices,
		History:       device.NewSQLiteHistoryRepository(db),
		Fences:        fenceRepo,
		Registry:      registry,
		FenceRegistry: fences,
		Quota:         quota.NewResolver(users, settings, registry),
		Users:         users,
		Admins:        settings,
		Outbox:        outbox,
		SerialPrefix:  "VT",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return fixture{db: db, svc: svc, outbox: outbox, users: users, fences: fences, devices: devices}
}

// configured provisions and configures one device and returns its serial.
func (f fixture) configured(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.CreatePool(ctx)
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	if _, err := f.svc.MarkAsConfigured(ctx, p.Serial); err != nil {
		t.Fatalf("MarkAsConfigured() error = %v", err)
	}
	return p.Serial
}

func assertKind(t *testing.T, err error, kind apperror.Kind, sentinel error) {
	t.Helper()
	if !apperror.Is(err, kind) {
		t.Fatalf("error = %v, want kind %s", err, kind)
	}
	if sentinel != nil && !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) returned no error")
	}
}

func TestService_PoolLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.svc.CreatePool(ctx)
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	if !strings.HasPrefix(p.Serial, "VT-") || p.Status != device.PoolCreated {
		t.Errorf("pool = %+v", p)
	}

	if _, err := f.svc.GetDevice(ctx, p.Serial); !apperror.Is(err, apperror.NotFound) {
		t.Errorf("device before configure: error = %v, want not_found", err)
	}

	configured, err := f.svc.MarkAsConfigured(ctx, strings.ToLower(p.Serial))
	if err != nil {
		t.Fatalf("MarkAsConfigured() error = %v", err)
	}
	if configured.Status != device.PoolConfigured {
		t.Errorf("pool status = %s", configured.Status)
	}

	d, err := f.svc.GetDevice(ctx, p.Serial)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.AssignStatus != device.NotAssigned || d.Status != device.StatusInactive ||
		d.FirmwareVersion != device.DefaultFirmwareVersion || d.MaxFence != device.UnlimitedFences {
		t.Errorf("new device = %+v", d)
	}

	_, err = f.svc.MarkAsConfigured(ctx, p.Serial)
	assertKind(t, err, apperror.Conflict, ErrAlreadyConfigured)

	_, err = f.svc.MarkAsConfigured(ctx, "VT-NOPE")
	assertKind(t, err, apperror.NotFound, device.ErrPoolNotFound)

	created, err := f.svc.Provision(ctx, 3)
	if err != nil || len(created) != 3 {
		t.Fatalf("Provision(3) = %d rows, %v", len(created), err)
	}
	pending, err := f.svc.ListPools(ctx, device.PoolFilter{Status: device.PoolCreated}, paging.Page{})
	if err != nil || pending.Total != 3 {
		t.Errorf("ListPools(created) total = %d, %v; want 3", pending.Total, err)
	}
	_, err = f.svc.Provision(ctx, 0)
	assertKind(t, err, apperror.Validation, nil)
}

func TestService_RequestAndApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.InsertUser(t, f.db, testutil.UserRow{Email: "boss@example.com", Role: "admin"})
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{Email: "jo@example.com", FirstName: "Jo"})
	other := testutil.InsertUser(t, f.db, testutil.UserRow{})
	serial := f.configured(t)

	d, err := f.svc.RequestAssignment(ctx, owner, serial, device.Details{Name: " Van 1 ", VehicleNumber: "AB12"})
	if err != nil {
		t.Fatalf("RequestAssignment() error = %v", err)
	}
	if d.AssignStatus != device.PendingApproval || !d.OwnedBy(owner) || d.Name != "Van 1" || d.ApprovalRequestedAt == nil {
		t.Errorf("pending device = %+v", d)
	}

	msgs := f.outbox.Drain()
	if len(msgs) != 1 {
		t.Fatalf("outbox = %d messages, want 1", len(msgs))
	}
	req, ok := msgs[0].(notify.ApprovalRequested)
	if !ok || req.UserEmail != "jo@example.com" || req.UserName != "Jo" || len(req.AdminEmails) != 1 || req.AdminEmails[0] != "boss@example.com" {
		t.Errorf("approval request = %+v", msgs[0])
	}

	_, err = f.svc.RequestAssignment(ctx, owner, serial, device.Details{})
	assertKind(t, err, apperror.Conflict, ErrRequestPending)
	_, err = f.svc.RequestAssignment(ctx, other, serial, device.Details{})
	assertKind(t, err, apperror.Conflict, ErrRequestPending)

	d, err = f.svc.UpdateApproval(ctx, "admin-1", serial, true)
	if err != nil {
		t.Fatalf("UpdateApproval(approve) error = %v", err)
	}
	if d.AssignStatus != device.Assigned || d.Status != device.StatusActive ||
		d.ApprovedBy == nil || *d.ApprovedBy != "admin-1" || d.ApprovedAt == nil {
		t.Errorf("approved device = %+v", d)
	}
	if msgs := f.outbox.Drain(); len(msgs) != 1 || msgs[0].Kind() != notify.KindApprovalAccepted || msgs[0].Recipient() != owner {
		t.Errorf("approval messages = %+v", msgs)
	}

	_, err = f.svc.UpdateApproval(ctx, "admin-1", serial, false)
	assertKind(t, err, apperror.Conflict, ErrNotPending)
	_, err = f.svc.RequestAssignment(ctx, owner, serial, device.Details{})
	assertKind(t, err, apperror.Conflict, ErrAlreadyAssigned)

	history, err := f.svc.History(ctx, serial, 0)
	if err != nil || len(history) != 2 {
		t.Fatalf("History() = %d entries, %v; want 2", len(history), err)
	}
	if history[0].To != device.Assigned || history[1].To != device.PendingApproval {
		t.Errorf("history order = %s, %s", history[0].To, history[1].To)
	}
}

func TestService_RejectClearsRequester(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{})
	serial := f.configured(t)

	if _, err := f.svc.RequestAssignment(ctx, owner, serial, device.Details{Name: "Van", DriverName: "Sam"}); err != nil {
		t.Fatalf("RequestAssignment() error = %v", err)
	}
	f.outbox.Drain()

	d, err := f.svc.UpdateApproval(ctx, "admin-1", serial, false)
	if err != nil {
		t.Fatalf("UpdateApproval(reject) error = %v", err)
	}
	if d.AssignStatus != device.NotAssigned || d.Status != device.StatusInactive || d.UserID != nil ||
		d.Name != "" || d.DriverName != "" || d.ApprovalRequestedAt != nil {
		t.Errorf("rejected device = %+v", d)
	}

	msgs := f.outbox.Drain()
	if len(msgs) != 1 {
		t.Fatalf("outbox = %d messages, want 1", len(msgs))
	}
	if rej, ok := msgs[0].(notify.ApprovalRejected); !ok || rej.UserID != owner || rej.RejectedBy != "admin-1" {
		t.Errorf("rejection = %+v", msgs[0])
	}

	// A rejected device can be requested again.
	if _, err := f.svc.RequestAssignment(ctx, owner, serial, device.Details{}); err != nil {
		t.Errorf("RequestAssignment() after reject error = %v", err)
	}
}

func TestService_RequestAssignmentQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{MaxDevice: 2})
	testutil.InsertDevice(t, f.db, testutil.DeviceRow{Serial: "VT-OWNED-1", UserID: owner, AssignStatus: "assigned", Status: "active"})
	testutil.InsertDevice(t, f.db, testutil.DeviceRow{Serial: "VT-OWNED-2", UserID: owner, AssignStatus: "assigned", Status: "active"})
	serial := f.configured(t)

	_, err := f.svc.RequestAssignment(ctx, owner, serial, device.Details{})
	assertKind(t, err, apperror.QuotaExceeded, quota.ErrDeviceLimitReached)

	d, err := f.svc.GetDevice(ctx, serial)
	if err != nil || d.AssignStatus != device.NotAssigned || d.UserID != nil {
		t.Errorf("denied request changed the device: %+v, %v", d, err)
	}

	if _, err := f.svc.UpdateUserLimits(ctx, "admin-1", owner, 3, user.NoOverride); err != nil {
		t.Fatalf("UpdateUserLimits() error = %v", err)
	}
	if _, err := f.svc.RequestAssignment(ctx, owner, serial, device.Details{}); err != nil {
		t.Errorf("RequestAssignment() after raising limit error = %v", err)
	}
}

func TestService_UpdateUserLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{MaxDevice: 1})

	// Prime the cache with the old limits.
	if limit, err := f.svc.quota.DeviceLimit(ctx, owner); err != nil || limit != 1 {
		t.Fatalf("DeviceLimit() = %d, %v, want 1", limit, err)
	}

	u, err := f.svc.UpdateUserLimits(ctx, "admin-1", owner, 4, 2)
	if err != nil {
		t.Fatalf("UpdateUserLimits() error = %v", err)
	}
	if u.MaxDevice != 4 || u.MaxFencePerDevice != 2 {
		t.Errorf("limits = %d/%d, want 4/2", u.MaxDevice, u.MaxFencePerDevice)
	}
	if limit, err := f.svc.quota.DeviceLimit(ctx, owner); err != nil || limit != 4 {
		t.Errorf("DeviceLimit() after update = %d, %v, want 4", limit, err)
	}

	tests := []struct {
		name              string
		userID            string
		maxDevice, maxFPD int
		kind              apperror.Kind
		sentinel          error
	}{
		{"device limit too low", owner, -2, 0, apperror.Validation, user.ErrInvalidLimit},
		{"device limit too high", owner, user.MaxDeviceOverride + 1, 0, apperror.Validation, user.ErrInvalidLimit},
		{"fence limit too high", owner, 1, user.MaxFencePerDeviceOverride + 1, apperror.Validation, user.ErrInvalidLimit},
		{"unknown user", "usr-missing", 1, 1, apperror.NotFound, user.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateUserLimits(ctx, "admin-1", tt.userID, tt.maxDevice, tt.maxFPD)
			assertKind(t, err, tt.kind, tt.sentinel)
		})
	}
}

func TestService_ConcurrentRequestsRespectQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{MaxDevice: 1})
	serials := []string{f.configured(t), f.configured(t), f.configured(t)}

	var wg sync.WaitGroup
	errs := make([]error, len(serials))
	for i, serial := range serials {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.RequestAssignment(ctx, owner, serial, device.Details{})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !apperror.Is(err, apperror.QuotaExceeded):
			t.Errorf("unexpected error = %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d requests succeeded, want exactly 1", succeeded)
	}
}

func TestService_AssignDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{})
	serial := f.configured(t)

	d, err := f.svc.AssignDevice(ctx, "admin-1", serial, owner)
	if err != nil {
		t.Fatalf("AssignDevice() error = %v", err)
	}
	if d.AssignStatus != device.Assigned || d.Status != device.StatusActive || !d.OwnedBy(owner) {
		t.Errorf("assigned device = %+v", d)
	}
	msgs := f.outbox.Drain()
	if len(msgs) != 1 {
		t.Fatalf("outbox = %d messages, want 1", len(msgs))
	}
	if added, ok := msgs[0].(notify.DeviceAddedToAccount); !ok || added.UserID != owner || added.AssignedBy != "admin-1" {
		t.Errorf("message = %+v", msgs[0])
	}

	_, err = f.svc.AssignDevice(ctx, "admin-1", serial, owner)
	assertKind(t, err, apperror.Conflict, ErrAlreadyAssigned)

	_, err = f.svc.AssignDevice(ctx, "admin-1", f.configured(t), "ghost")
	assertKind(t, err, apperror.NotFound, user.ErrUserNotFound)

	_, err = f.svc.AssignDevice(ctx, "admin-1", "VT-MISSING", owner)
	assertKind(t, err, apperror.NotFound, device.ErrDeviceNotFound)
}

func TestService_UpdateDeviceStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{})
	serial := f.configured(t)

	_, err := f.svc.UpdateDeviceStatus(ctx, serial, device.StatusActive)
	assertKind(t, err, apperror.Conflict, ErrNotAssigned)

	if _, err := f.svc.AssignDevice(ctx, "admin-1", serial, owner); err != nil {
		t.Fatalf("AssignDevice() error = %v", err)
	}

	_, err = f.svc.UpdateDeviceStatus(ctx, serial, device.StatusActive)
	assertKind(t, err, apperror.Conflict, ErrStatusUnchanged)

	d, err := f.svc.UpdateDeviceStatus(ctx, serial, device.StatusInactive)
	if err != nil || d.Status != device.StatusInactive || d.AssignStatus != device.Assigned {
		t.Errorf("UpdateDeviceStatus(inactive) = %+v, %v", d, err)
	}

	_, err = f.svc.UpdateDeviceStatus(ctx, serial, "sleeping")
	assertKind(t, err, apperror.Validation, device.ErrInvalidStatus)
	_, err = f.svc.UpdateDeviceStatus(ctx, "VT-MISSING", device.StatusActive)
	assertKind(t, err, apperror.NotFound, nil)
}

func TestService_UpdateDeviceAndMaxFence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{})
	other := testutil.InsertUser(t, f.db, testutil.UserRow{})
	serial := f.configured(t)

	_, err := f.svc.UpdateDevice(ctx, owner, serial, device.Details{Name: "Van"})
	assertKind(t, err, apperror.Conflict, ErrNotAssigned)

	if _, err := f.svc.RequestAssignment(ctx, owner, serial, device.Details{Name: "Van", VehicleNumber: "AB12"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateApproval(ctx, "admin-1", serial, true); err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.UpdateDevice(ctx, other, serial, device.Details{Name: "Mine"})
	assertKind(t, err, apperror.Conflict, ErrNotOwner)

	d, err := f.svc.UpdateDevice(ctx, owner, serial, device.Details{Name: "Truck"})
	if err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}
	if d.Name != "Truck" || d.VehicleNumber != "AB12" {
		t.Errorf("updated details = %+v", d.Details)
	}

	_, err = f.svc.UpdateMaxFence(ctx, serial, 101)
	assertKind(t, err, apperror.Validation, device.ErrInvalidMaxFence)
	d, err = f.svc.UpdateMaxFence(ctx, serial, 5)
	if err != nil || d.MaxFence != 5 {
		t.Errorf("UpdateMaxFence(5) = %+v, %v", d, err)
	}
}

func TestService_DeleteDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := testutil.InsertUser(t, f.db, testutil.UserRow{})
	serial := f.configured(t)
	kept := f.configured(t)

	fence := &geofence.Fence{
		Name:                  "Depot",
		Geometry:              json.RawMessage(`{"type":"circle","center":[0,0],"radius":10}`),
		IsActive:              true,
		UserID:                owner,
		AttachedDeviceSerials: []string{serial, kept},
	}
	if err := f.fences.Create(ctx, fence); err != nil {
		t.Fatalf("creating fence: %v", err)
	}
	if err := f.devices.SetGeoFences(ctx, serial, []string{fence.ID}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.AssignDevice(ctx, "admin-1", kept, owner); err != nil {
		t.Fatal(err)
	}
	err := f.svc.DeleteDevice(ctx, "admin-1", kept)
	assertKind(t, err, apperror.Conflict, ErrDeviceInUse)

	if err := f.svc.DeleteDevice(ctx, "admin-1", serial); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}

	_, err = f.svc.GetDevice(ctx, serial)
	assertKind(t, err, apperror.NotFound, device.ErrDeviceNotFound)
	pools, err := f.svc.ListPools(ctx, device.PoolFilter{Serial: serial}, paging.Page{})
	if err != nil || pools.Total != 0 {
		t.Errorf("pool rows after delete = %d, %v", pools.Total, err)
	}

	got, err := f.fences.GetByID(ctx, fence.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.HasDevice(serial) || !got.HasDevice(kept) {
		t.Errorf("fence serials after delete = %v", got.AttachedDeviceSerials)
	}

	history, err := f.svc.History(ctx, serial, 0)
	if err != nil || len(history) != 1 || history[0].To != removed {
		t.Errorf("history after delete = %+v, %v", history, err)
	}

	err = f.svc.DeleteDevice(ctx, "admin-1", serial)
	assertKind(t, err, apperror.NotFound, nil)
}
