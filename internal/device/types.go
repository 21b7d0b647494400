package device

import "time"

// Device represents one coin/keycard-operated appliance in the fleet.
// Devices are created and removed only by the fleet server; the console
// reads snapshots and republishes merged copies, never fabricating or
// deleting records locally.
type Device struct {
	// Identity (stable, server-assigned)
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Classification and pricing
	Type       string  `json:"type"`
	HourlyCost float64 `json:"hourly_cost"`

	// Live usage. Invariant: TimeLeft > 0 if and only if UserID is non-nil.
	UserID   *int64     `json:"user_id"`
	EndTime  *time.Time `json:"end_time"`
	TimeLeft *int64     `json:"time_left"`
}

// Delta is an incremental push update for a single device, delivered on
// that device's push channel. It carries only the mutable usage fields.
type Delta struct {
	DeviceID int64  `json:"device_id"`
	UserID   *int64 `json:"user_id"`
	TimeLeft *int64 `json:"time_left"`
}

// Running reports whether the device is currently in use.
// A nil or non-positive TimeLeft means idle.
func (d *Device) Running() bool {
	return d.UserID != nil && d.TimeLeft != nil && *d.TimeLeft > 0
}

// Clone creates an independent copy of the Device.
// Pointer fields are duplicated so modifications to the copy do not
// affect the original. This is essential for registry isolation.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	clone := *d
	if d.UserID != nil {
		v := *d.UserID
		clone.UserID = &v
	}
	if d.EndTime != nil {
		v := *d.EndTime
		clone.EndTime = &v
	}
	if d.TimeLeft != nil {
		v := *d.TimeLeft
		clone.TimeLeft = &v
	}
	return &clone
}

// Normalize reconciles the usage fields so the running invariant holds:
// TimeLeft > 0 if and only if UserID is non-nil. A half-formed update
// (remaining time without an assigned user, or vice versa) is resolved
// to idle rather than trusted.
func (d *Device) Normalize() {
	if d.Running() {
		return
	}
	d.UserID = nil
	if d.TimeLeft != nil && *d.TimeLeft > 0 {
		d.TimeLeft = nil
	}
}
