// Package session owns transaction correlation for one Spinel link.
//
// Ownership boundary:
// - transaction id allocation and the pending-transaction table
// - per-transaction deadlines and the wait queue for free ids
// - routing of inbound frames to callers or the notification hook
// - device reset detection and the reset epoch
// - reader retry/backoff primitives
package session
