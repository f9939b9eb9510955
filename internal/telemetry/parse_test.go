package telemetry

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_FullFrame(t *testing.T) {
	rec, err := Parse("$$HAR,1000,12.3456,78.9012,100.5,0.1,0.2,0.3,25.3,1013.25,45.2")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := Record{
		Time:        "1000",
		Lat:         "12.3456",
		Lon:         "78.9012",
		Alt:         "100.5",
		VX:          "0.1",
		VY:          "0.2",
		VZ:          "0.3",
		Temperature: "25.3",
		Pressure:    "1013.25",
		Humidity:    "45.2",
	}
	if !rec.Equal(want) {
		t.Errorf("Parse() = %+v, want %+v", rec, want)
	}
	if rec.Extra != nil {
		t.Errorf("Extra = %q, want nil", *rec.Extra)
	}
}

func TestParse_ExtraField(t *testing.T) {
	rec, err := Parse("$$HAR,1,2,3,4,5,6,7,8,9,10, ExtraData ,ignored,also ignored")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Extra == nil {
		t.Fatal("Extra = nil, want ExtraData")
	}
	if *rec.Extra != "ExtraData" {
		t.Errorf("Extra = %q, want %q", *rec.Extra, "ExtraData")
	}
	if rec.Humidity != "10" {
		t.Errorf("Humidity = %q, want %q", rec.Humidity, "10")
	}
}

func TestParse_TrimsFieldsAndLineEndings(t *testing.T) {
	rec, err := Parse("  $$HAR, 1000 ,  12.5,78.9,100.5,0.1,0.2,0.3,25.3,1013.25,45.2\r\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Time != "1000" {
		t.Errorf("Time = %q, want %q", rec.Time, "1000")
	}
	if rec.Lat != "12.5" {
		t.Errorf("Lat = %q, want %q", rec.Lat, "12.5")
	}
	if rec.Humidity != "45.2" {
		t.Errorf("Humidity = %q, want %q", rec.Humidity, "45.2")
	}
}

func TestParse_KeepsMalformedNumericsAsText(t *testing.T) {
	rec, err := Parse("$$HAR,t0,not-a-number,,NaN,1e400,0.1,0.2,0.3,x,y")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Lat != "not-a-number" || rec.Lon != "" || rec.VX != "1e400" {
		t.Errorf("Parse() = %+v, want fields carried verbatim", rec)
	}
}

func TestParse_NotAFrame(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"hello world",
		"$HAR,12.3456,78.9012,100.5,25.3,1013.25,45.2,ExtraData",
		"GPGGA,1,2,3,4,5,6,7,8,9,10",
		"x$$HAR,1,2,3,4,5,6,7,8,9,10",
	}

	for _, line := range lines {
		_, err := Parse(line)
		if !errors.Is(err, ErrNotFrame) {
			t.Errorf("Parse(%q) error = %v, want ErrNotFrame", line, err)
		}
		if errors.Is(err, ErrTooFewFields) {
			t.Errorf("Parse(%q) reported ErrTooFewFields for a non-frame", line)
		}
	}
}

func TestParse_TooFewFields(t *testing.T) {
	tests := []struct {
		line   string
		fields int
	}{
		{"$$HAR", 0},
		{"$$HAR,1000,12.3,78.9", 3},
		{"$$HAR,1,2,3,4,5,6,7,8,9", 9},
	}

	for _, tt := range tests {
		rec, err := Parse(tt.line)
		if !errors.Is(err, ErrTooFewFields) {
			t.Fatalf("Parse(%q) error = %v, want ErrTooFewFields", tt.line, err)
		}
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("Parse(%q) error type = %T, want *ParseError", tt.line, err)
		}
		if perr.Fields != tt.fields {
			t.Errorf("Parse(%q) Fields = %d, want %d", tt.line, perr.Fields, tt.fields)
		}
		if perr.Min != DataFields {
			t.Errorf("Parse(%q) Min = %d, want %d", tt.line, perr.Min, DataFields)
		}
		if !rec.Equal(Record{}) {
			t.Errorf("Parse(%q) returned a record alongside an error: %+v", tt.line, rec)
		}
	}
}

func TestParser_CustomSentinel(t *testing.T) {
	p := Parser{Sentinel: "$$TST"}

	if _, err := p.Parse("$$HAR,1,2,3,4,5,6,7,8,9,10"); !errors.Is(err, ErrNotFrame) {
		t.Errorf("Parse() error = %v, want ErrNotFrame for default sentinel", err)
	}

	rec, err := p.Parse("$$TST,1,2,3,4,5,6,7,8,9,10")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Time != "1" || rec.Humidity != "10" {
		t.Errorf("Parse() = %+v", rec)
	}
}

func TestParse_FieldOrder(t *testing.T) {
	values := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
	rec, err := Parse(DefaultSentinel + "," + strings.Join(values, ","))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := []string{
		rec.Time, rec.Lat, rec.Lon, rec.Alt, rec.VX, rec.VY, rec.VZ,
		rec.Temperature, rec.Pressure, rec.Humidity, *rec.Extra,
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("field %d = %q, want %q", i, got[i], values[i])
		}
	}
}
