package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyStore fails the first failSets Set calls and can fail every Get.
type flakyStore struct {
	*MemoryStore
	failSets int
	sets     int
	failGets bool
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.sets++
	if f.sets <= f.failSets {
		return errors.New("connection reset")
	}
	return f.MemoryStore.Set(ctx, key, value, ttl)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGets {
		return nil, false, errors.New("connection refused")
	}
	return f.MemoryStore.Get(ctx, key)
}

type cachedThing struct {
	ID     string   `json:"id"`
	Serial string   `json:"serial"`
	Fences []string `json:"fences"`
}

func TestAside_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewAside(NewMemoryStore(), 0)

	if a.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", a.TTL(), DefaultTTL)
	}

	var miss cachedThing
	if a.GetJSON(ctx, DeviceBySerial("vt-1"), &miss) {
		t.Fatal("expected miss on empty cache")
	}

	in := cachedThing{ID: "d1", Serial: "VT-1", Fences: []string{"f1"}}
	a.SetJSON(ctx, DeviceBySerial("vt-1"), in)

	var out cachedThing
	if !a.GetJSON(ctx, DeviceBySerial("VT-1"), &out) {
		t.Fatal("expected hit: serial keys are case-normalised")
	}
	if out.ID != "d1" || len(out.Fences) != 1 {
		t.Errorf("GetJSON() = %+v, want %+v", out, in)
	}

	a.Delete(ctx, DeviceBySerial("VT-1"))
	if a.GetJSON(ctx, DeviceBySerial("VT-1"), &out) {
		t.Error("expected miss after Delete")
	}
}

func TestAside_RetriesWrites(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSets: 2}
	a := NewAside(store, time.Minute)

	a.SetJSON(ctx, "k", "v")

	var got string
	if !a.GetJSON(ctx, "k", &got) || got != "v" {
		t.Errorf("write should succeed on third attempt, got %q", got)
	}
	if store.sets != 3 {
		t.Errorf("sets = %d, want 3", store.sets)
	}
}

func TestAside_SwallowsFailures(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSets: 100, failGets: true}
	a := NewAside(store, time.Minute)
	a.SetRetryAttempts(1)

	a.SetJSON(ctx, "k", "v")
	if store.sets != 2 {
		t.Errorf("sets = %d, want 2 (one retry)", store.sets)
	}

	var got string
	if a.GetJSON(ctx, "k", &got) {
		t.Error("read failure must be reported as a miss")
	}
}

func TestAside_DiscardsUndecodable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewAside(store, time.Minute)

	if err := store.Set(ctx, "bad", []byte("{not json"), time.Minute); err != nil {
		t.Fatal(err)
	}
	var v cachedThing
	if a.GetJSON(ctx, "bad", &v) {
		t.Fatal("undecodable entry must be a miss")
	}
	if _, found, _ := store.Get(ctx, "bad"); found { //nolint:errcheck // Miss check only
		t.Error("undecodable entry should have been deleted")
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DevicePoolBySerial("vt-abc"), "device_pool_by_serial_VT-ABC"},
		{DevicePoolByID("p1"), "device_pool_by_id_p1"},
		{DeviceBySerial("vt-abc"), "device_by_serial_VT-ABC"},
		{DeviceByID("d1"), "device_by_id_d1"},
		{SiteConfigByKey("MAX_DEVICE_PER_USER"), "site_config_by_key_max_device_per_user"},
		{SiteConfigValueByKey("Max_Device_Per_User"), "site_config_value_by_key_max_device_per_user"},
		{SiteConfigByID("c1"), "site_config_by_id_c1"},
		{UserByID("u1"), "user_by_id_u1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestKeyFamily(t *testing.T) {
	if got := keyFamily("site_config_value_by_key_x"); got != "site_config_value" {
		t.Errorf("keyFamily = %q", got)
	}
	if got := keyFamily(SiteConfigAllAvailableKeys); got != SiteConfigAllAvailableKeys {
		t.Errorf("keyFamily = %q", got)
	}
}
