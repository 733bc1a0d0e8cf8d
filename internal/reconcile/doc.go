// Package reconcile repairs cross-entity state that a crash or a partial
// write can leave behind.
//
// Two rules are checked on every pass:
//
//   - A device lists a fence exactly when the fence lists the device. A link
//     present on one side only is completed when both entities exist and is
//     dropped when the other entity is gone.
//   - Exactly one firmware row carries the latest flag while any rows exist.
//
// Run performs one pass. Loop repeats it on a fixed period until its context
// is cancelled.
package reconcile
