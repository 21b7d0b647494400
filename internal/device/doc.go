// Package device provides the live device registry for the Washdeck console.
//
// The registry is the console's in-memory view of the appliance fleet. It
// is populated by an authenticated snapshot fetch and kept current by
// merging asynchronous push deltas delivered over the per-device channels.
//
// # Key Types
//
//   - Device: one appliance, with identity, pricing, and live usage fields
//   - Delta: an incremental push update carrying the mutable usage fields
//   - Registry: snapshot-load and merge-update operations over the collection
//
// # Consistency Model
//
// Snapshots replace the collection wholesale; a failed snapshot leaves the
// previous collection untouched. Deltas merge only the assigned user and
// remaining time into existing records and are applied in arrival order
// per device. There is no cross-device ordering guarantee, and the last
// delta applied for a device wins. A delta for a device outside the
// current snapshot is dropped, because snapshot and channel set are always
// refreshed together.
//
// After every load and merge the running invariant holds: a device has
// remaining time if and only if it has an assigned user.
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex and all reads return independent copies.
package device
