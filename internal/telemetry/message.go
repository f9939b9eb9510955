package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the wire form of a snapshot, shared by every push and pull
// protocol. Field order matches the frame order; nil encodes as JSON null,
// which is how clients see the unknown state before the first frame.
type Message struct {
	Time        *string `json:"time"`
	Lat         *string `json:"lat"`
	Lon         *string `json:"lon"`
	Alt         *string `json:"alt"`
	VX          *string `json:"vx"`
	VY          *string `json:"vy"`
	VZ          *string `json:"vz"`
	Temperature *string `json:"temperature"`
	Pressure    *string `json:"pressure"`
	Humidity    *string `json:"humidity"`
	Other       *string `json:"other"`
}

// errPartialMessage is returned by [Message.Record] when some but not all
// data fields are null.
var errPartialMessage = errors.New("message has a mix of null and non-null data fields")

// NewMessage builds the wire message for a record. When ok is false the
// record is ignored and every field is null.
func NewMessage(rec Record, ok bool) Message {
	if !ok {
		return Message{}
	}
	rec = rec.Clone()
	return Message{
		Time:        &rec.Time,
		Lat:         &rec.Lat,
		Lon:         &rec.Lon,
		Alt:         &rec.Alt,
		VX:          &rec.VX,
		VY:          &rec.VY,
		VZ:          &rec.VZ,
		Temperature: &rec.Temperature,
		Pressure:    &rec.Pressure,
		Humidity:    &rec.Humidity,
		Other:       rec.Extra,
	}
}

// Record converts the message back into a record. It returns ok=false
// for the all-null unknown message and an error when only some data
// fields are null.
func (m Message) Record() (rec Record, ok bool, err error) {
	src := [DataFields]*string{
		m.Time, m.Lat, m.Lon, m.Alt,
		m.VX, m.VY, m.VZ,
		m.Temperature, m.Pressure, m.Humidity,
	}

	nulls := 0
	for _, v := range src {
		if v == nil {
			nulls++
		}
	}
	switch nulls {
	case DataFields:
		return Record{}, false, nil
	case 0:
	default:
		return Record{}, false, errPartialMessage
	}

	for i, field := range rec.fields() {
		*field = *src[i]
	}
	if m.Other != nil {
		other := *m.Other
		rec.Extra = &other
	}
	return rec, true, nil
}

// Encode serializes a record (or the unknown state when ok is false).
func Encode(rec Record, ok bool) ([]byte, error) {
	data, err := json.Marshal(NewMessage(rec, ok))
	if err != nil {
		return nil, fmt.Errorf("encode telemetry message: %w", err)
	}
	return data, nil
}

// Decode parses a message produced by [Encode].
func Decode(data []byte) (Record, bool, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Record{}, false, fmt.Errorf("decode telemetry message: %w", err)
	}
	return m.Record()
}
