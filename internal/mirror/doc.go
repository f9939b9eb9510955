// Package mirror republishes the latest telemetry snapshot to an MQTT
// broker so that consumers already on a message bus can follow the device
// without opening a socket to harcast.
//
// The mirror is just another reader of the store. It publishes a retained
// message on a fixed cadence, skipping ticks where the store has not
// changed since the last successful publish.
package mirror
