// Package telemetry records device usage to InfluxDB.
//
// The Recorder is optional: when telemetry is disabled in configuration,
// Connect returns ErrDisabled and the console runs without it. Every
// write method is safe to call on a nil receiver, so callers never need
// to branch on whether telemetry is configured.
//
// Writes are non-blocking and batched by the underlying client;
// asynchronous write failures are reported through the error callback.
package telemetry
