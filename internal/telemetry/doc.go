// Package telemetry defines the HAR telemetry record, the line-oriented
// frame parser that produces it, and the JSON message used on the wire.
//
// A frame is one comma-delimited text line from the device:
//
//	$$HAR,time,lat,lon,alt,vx,vy,vz,temperature,pressure,humidity[,extra]
//
// The main components are:
//
//   - [Record]: one fully populated telemetry reading
//   - [Parser]: turns a raw line into a [Record], a [ParseError], or [ErrNotFrame]
//   - [Message]: the flat JSON object sent to push and pull clients
//
// Field values are carried as trimmed text. No numeric conversion happens
// here, so a malformed number never causes a frame to be dropped and no
// precision is lost between the device and the client.
package telemetry
