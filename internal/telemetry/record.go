package telemetry

// DataFields is the number of data fields every frame must carry after
// the sentinel: time, lat, lon, alt, vx, vy, vz, temperature, pressure
// and humidity.
const DataFields = 10

// Record is one parsed telemetry frame.
//
// All ten data fields are always assigned by the parser, even when the
// device sent an empty value. Extra holds the optional trailing field and
// is nil when the frame carried only the minimum field set. Its content
// is opaque and passed through unchanged.
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

// Clone returns a copy of r that shares no memory with it.
func (r Record) Clone() Record {
	if r.Extra != nil {
		extra := *r.Extra
		r.Extra = &extra
	}
	return r
}

// Equal reports whether r and other hold the same field values.
func (r Record) Equal(other Record) bool {
	if r.Time != other.Time || r.Lat != other.Lat || r.Lon != other.Lon ||
		r.Alt != other.Alt || r.VX != other.VX || r.VY != other.VY ||
		r.VZ != other.VZ || r.Temperature != other.Temperature ||
		r.Pressure != other.Pressure || r.Humidity != other.Humidity {
		return false
	}
	if (r.Extra == nil) != (other.Extra == nil) {
		return false
	}
	return r.Extra == nil || *r.Extra == *other.Extra
}

// fields returns pointers to the data fields in frame order.
func (r *Record) fields() [DataFields]*string {
	return [DataFields]*string{
		&r.Time, &r.Lat, &r.Lon, &r.Alt,
		&r.VX, &r.VY, &r.VZ,
		&r.Temperature, &r.Pressure, &r.Humidity,
	}
}
