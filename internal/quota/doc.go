// Package quota resolves how many devices a user may own and how many
// geofences a device may carry.
//
// Limits are resolved by precedence: a per-entity override, then the owning
// user's override, then the global site setting, and finally unlimited. Any
// negative value at a level means "defer to the next level".
//
// The Resolver only reads. Enforcement happens where the write happens: the
// assignment service folds the device limit into its conditional update and
// the fencing engine re-counts attached fences inside its transaction.
package quota
