// Package assignment drives a tracker from provisioning to ownership.
//
// A serial is provisioned as a pool row (CreatePool), becomes a Device when
// the factory marks it configured (MarkAsConfigured), and is then claimed by
// a user and approved by an admin, or assigned by an admin directly:
//
//	not_assigned --RequestAssignment--> pending_approval --approve--> assigned
//	not_assigned --AssignDevice-------------------------------------> assigned
//	pending_approval --reject--> not_assigned
//
// Every ownership edge is a single conditional UPDATE that carries the state
// guard, the ownership guard and the device quota, so two concurrent claims
// cannot both succeed. When the update matches no row the service re-reads
// the device to report which guard failed.
//
// Side effects for people (approval e-mails, account notices) are placed on
// a notify.Publisher and never awaited.
package assignment
