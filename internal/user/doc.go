// Package user exposes the read-only view of accounts the fleet core needs:
// role, e-mail and the per-user quota overrides (MaxDevice,
// MaxFencePerDevice, -1 meaning "use the global setting").
//
// Accounts are created and edited by the account service. Whoever changes a
// user row is expected to call Registry.Invalidate so cached copies are
// dropped before the TTL runs out.
package user
