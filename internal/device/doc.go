// Package device holds provisioned serials (Pool) and configured trackers
// (Device) together with their SQLite repositories and the cache-aside
// Registry in front of them.
//
// # Lifecycle
//
//	Pool:   created ──MarkAsConfigured──▶ configured  (Device row inserted)
//
//	Device.AssignStatus:
//
//	  not_assigned ──request──▶ pending_approval ──approve──▶ assigned
//	       │  ▲                        │
//	       │  └──────────reject────────┘
//	       └──────────admin assign──────────────────────────▶ assigned
//
// Status is active only while assigned. The transitions themselves live in
// the assignment package; this package supplies the conditional update
// (Repository.CompareAndSwapAssignment) that makes each edge atomic,
// including the owner's device-count guard.
//
// # Cache keys
//
//	device_pool_by_serial_<SERIAL>, device_pool_by_id_<id>
//	device_by_serial_<SERIAL>,      device_by_id_<id>
//
// Serials are upper-cased on every write and lookup.
//
// # Usage
//
//	pools := device.NewSQLitePoolRepository(db)
//	devices := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(pools, devices, aside)
//	registry.SetLogger(log)
//
//	d, err := registry.GetBySerial(ctx, "vt-2601...")
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // ...
//	}
package device
