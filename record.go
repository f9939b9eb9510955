package harcast

import "github.com/jpalmerr/harcast/internal/telemetry"

// Record is one accepted telemetry frame as delivered to callbacks
// registered with [WithRecordCallback].
//
// Values are passed through exactly as the device sent them. Extra is nil
// when the frame carried no trailing field.
type Record struct {
	Time        string
	Lat         string
	Lon         string
	Alt         string
	VX          string
	VY          string
	VZ          string
	Temperature string
	Pressure    string
	Humidity    string
	Extra       *string
}

// toPublicRecord converts the internal record to the public type.
// The result shares no memory with rec.
func toPublicRecord(rec telemetry.Record) Record {
	rec = rec.Clone()
	return Record{
		Time:        rec.Time,
		Lat:         rec.Lat,
		Lon:         rec.Lon,
		Alt:         rec.Alt,
		VX:          rec.VX,
		VY:          rec.VY,
		VZ:          rec.VZ,
		Temperature: rec.Temperature,
		Pressure:    rec.Pressure,
		Humidity:    rec.Humidity,
		Extra:       rec.Extra,
	}
}
