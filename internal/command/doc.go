// Package command issues start and stop commands for devices.
//
// The Dispatcher validates a command before any network traffic: a start
// needs a positive duration and an administrator identity, so a rejection
// for either reason costs nothing. Accepted commands are sent to the
// fleet backend and marked pending; the authoritative state change
// arrives later as a push delta, and ObserveDelta clears the pending
// mark when it does. A backend rejection clears the mark immediately and
// surfaces the backend's own reason to the caller.
package command
