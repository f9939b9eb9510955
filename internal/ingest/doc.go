// Package ingest runs the producer side of harcast: it reads lines from a
// transport, parses them into telemetry records, and writes each good
// record to the latest-value store.
//
// The loop is the only writer of the store. It never stops because of bad
// input or a transient read failure; malformed frames are logged and
// dropped, timeouts are retried, and hard read errors trigger a delayed
// reopen when the source supports it. If the device goes quiet the store
// simply keeps its last value.
package ingest
