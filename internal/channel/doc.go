// Package channel maintains the per-device websocket push channels.
//
// The fleet backend exposes one websocket endpoint per device that streams
// usage deltas while the device runs. The Manager owns the full set of
// channels: OpenAll reconciles the set against a list of device IDs by
// closing every existing channel and dialing one per requested device, so
// the open set always mirrors the most recent snapshot. Each channel runs
// its own reader goroutine that decodes deltas and hands them to the
// caller's callback; a channel that fails to dial or read is marked
// errored without affecting its siblings.
//
// CloseAll tears the whole set down and waits for every reader to exit.
// It is safe to call repeatedly.
package channel
