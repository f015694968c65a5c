package l2p

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
)

// TestParseLinePosition tests decoding of the 13-token aircraft line.
func TestParseLinePosition(t *testing.T) {
	line := []byte("56395 40400.326 4ca626 RYR8JT 50.97158 -0.61729 29525 68.6683 280.17873692 7.16197030 -474.0 191.0 1088")

	rec, err := ParseLine(line)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	pos, ok := rec.(PositionRecord)
	if !ok {
		t.Fatalf("Expected PositionRecord, got %T", rec)
	}

	if pos.MJD != 56395 {
		t.Errorf("Expected MJD 56395, got %d", pos.MJD)
	}
	if pos.Epoch != 40400.326 {
		t.Errorf("Expected epoch 40400.326, got %f", pos.Epoch)
	}
	if pos.ID != "4ca626" {
		t.Errorf("Expected ID 4ca626, got %s", pos.ID)
	}
	if pos.Callsign != "RYR8JT" {
		t.Errorf("Expected callsign RYR8JT, got %s", pos.Callsign)
	}
	if pos.Latitude != 50.97158 {
		t.Errorf("Expected latitude 50.97158, got %f", pos.Latitude)
	}
	if pos.Longitude != -0.61729 {
		t.Errorf("Expected longitude -0.61729, got %f", pos.Longitude)
	}

	wantAlt := 29525 * 0.3048
	if math.Abs(pos.Altitude-wantAlt) > 1e-9 {
		t.Errorf("Expected altitude %f m, got %f", wantAlt, pos.Altitude)
	}
	if pos.Range != 68.6683 {
		t.Errorf("Expected range 68.6683, got %f", pos.Range)
	}

	wantAz := 280.17873692 * math.Pi / 180.0
	if math.Abs(pos.Azimuth-wantAz) > 1e-12 {
		t.Errorf("Expected azimuth %v rad, got %v", wantAz, pos.Azimuth)
	}
	if pos.Elevation != 7.16197030 {
		t.Errorf("Expected elevation 7.16197030 deg, got %f", pos.Elevation)
	}
}

// TestParseLineTelescope tests decoding of the 6-token mount status line.
func TestParseLineTelescope(t *testing.T) {
	t.Run("Pointing report", func(t *testing.T) {
		rec, err := ParseLine([]byte("56692 41847.094 telscp 75.00 65.00 1"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		ts, ok := rec.(TelescopeStatus)
		if !ok {
			t.Fatalf("Expected TelescopeStatus, got %T", rec)
		}
		if ts.MJD != 56692 {
			t.Errorf("Expected MJD 56692, got %d", ts.MJD)
		}
		if ts.Epoch != 41847.094 {
			t.Errorf("Expected epoch 41847.094, got %f", ts.Epoch)
		}
		if ts.Tag != "telscp" {
			t.Errorf("Expected tag telscp, got %s", ts.Tag)
		}
		if ts.Azimuth != 75.0 {
			t.Errorf("Expected azimuth 75, got %f", ts.Azimuth)
		}
		if ts.Elevation != 65.0 {
			t.Errorf("Expected elevation 65, got %f", ts.Elevation)
		}
		if !ts.Valid {
			t.Error("Expected valid pointing")
		}
	})

	t.Run("Parked default", func(t *testing.T) {
		rec, err := ParseLine([]byte("0 0 0 00.00 00.00 1"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		ts := rec.(TelescopeStatus)
		if ts.Azimuth != 0 || ts.Elevation != 0 {
			t.Errorf("Expected parked at 0/0, got %f/%f", ts.Azimuth, ts.Elevation)
		}
		if !ts.Valid {
			t.Error("Expected parked status to be valid")
		}
	})

	t.Run("Validity is the first byte of the last token", func(t *testing.T) {
		tests := []struct {
			name  string
			token string
			want  bool
		}{
			{"One", "1", true},
			{"Zero", "0", false},
			{"One with trailing digits", "10", true},
			{"Zero with trailing digits", "01", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				line := "56692 41847.094 telscp 75.00 65.00 " + tt.token
				rec, err := ParseLine([]byte(line))
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				if got := rec.(TelescopeStatus).Valid; got != tt.want {
					t.Errorf("Expected valid=%v for token %q, got %v", tt.want, tt.token, got)
				}
			})
		}
	})
}

// TestParseLineSentinel tests that any two-token line classifies as a
// control sentinel.
func TestParseLineSentinel(t *testing.T) {
	rec, err := ParseLine([]byte("CONN ERROR"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	cs, ok := rec.(ControlSentinel)
	if !ok {
		t.Fatalf("Expected ControlSentinel, got %T", rec)
	}
	if cs.Tokens[0] != "CONN" || cs.Tokens[1] != "ERROR" {
		t.Errorf("Expected tokens CONN/ERROR, got %v", cs.Tokens)
	}
}

// TestParseLineUnknownShape tests that unrecognized token counts are
// rejected with ErrUnknownShape.
func TestParseLineUnknownShape(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"Empty", ""},
		{"Whitespace only", "   \t  "},
		{"One token", "hello"},
		{"Three tokens", "a b c"},
		{"Five tokens", "1 2 3 4 5"},
		{"Seven tokens", "1 2 3 4 5 6 7"},
		{"Twelve tokens", "1 2 3 4 5 6 7 8 9 10 11 12"},
		{"Fourteen tokens", "1 2 3 4 5 6 7 8 9 10 11 12 13 14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseLine([]byte(tt.line))
			if !errors.Is(err, ErrUnknownShape) {
				t.Errorf("Expected ErrUnknownShape, got %v", err)
			}
			if rec != nil {
				t.Errorf("Expected no record, got %v", rec)
			}
		})
	}
}

// TestParseLineBadNumeric tests that recognized shapes with malformed
// numbers are rejected with a strconv error, not a shape error.
func TestParseLineBadNumeric(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"Position with bad latitude", "56395 40400.326 4ca626 RYR8JT abc -0.61729 29525 68.6683 280.17 7.16 -474.0 191.0 1088"},
		{"Position with bad MJD", "x 40400.326 4ca626 RYR8JT 50.97158 -0.61729 29525 68.6683 280.17 7.16 -474.0 191.0 1088"},
		{"Telescope with bad azimuth", "56692 41847.094 telscp az 65.00 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseLine([]byte(tt.line))
			if err == nil {
				t.Fatalf("Expected error, got record %v", rec)
			}
			if errors.Is(err, ErrUnknownShape) {
				t.Error("Expected a numeric error, got ErrUnknownShape")
			}
			if !errors.Is(err, strconv.ErrSyntax) {
				t.Errorf("Expected wrapped strconv error, got %v", err)
			}
		})
	}
}

// TestSplitPayload tests line reassembly across read boundaries.
func TestSplitPayload(t *testing.T) {
	t.Run("Complete lines", func(t *testing.T) {
		lines, rest := SplitPayload(nil, []byte("one 1\ntwo 2\n"))
		if len(lines) != 2 {
			t.Fatalf("Expected 2 lines, got %d", len(lines))
		}
		if string(lines[0]) != "one 1" || string(lines[1]) != "two 2" {
			t.Errorf("Expected lines one/two, got %q %q", lines[0], lines[1])
		}
		if rest != nil {
			t.Errorf("Expected no carry, got %q", rest)
		}
	})

	t.Run("Torn line carries over", func(t *testing.T) {
		lines, rest := SplitPayload(nil, []byte("56395 40400.326 4ca6"))
		if len(lines) != 0 {
			t.Fatalf("Expected no complete lines, got %d", len(lines))
		}
		if string(rest) != "56395 40400.326 4ca6" {
			t.Errorf("Expected carry of the partial line, got %q", rest)
		}

		lines, rest = SplitPayload(rest, []byte("26 RYR8JT\nnext"))
		if len(lines) != 1 {
			t.Fatalf("Expected 1 reassembled line, got %d", len(lines))
		}
		if string(lines[0]) != "56395 40400.326 4ca626 RYR8JT" {
			t.Errorf("Expected reassembled line, got %q", lines[0])
		}
		if string(rest) != "next" {
			t.Errorf("Expected carry next, got %q", rest)
		}
	})

	t.Run("Blank lines are dropped", func(t *testing.T) {
		lines, rest := SplitPayload(nil, []byte("\n\na b\n\n"))
		if len(lines) != 1 {
			t.Fatalf("Expected 1 line, got %d", len(lines))
		}
		if string(lines[0]) != "a b" {
			t.Errorf("Expected line a b, got %q", lines[0])
		}
		if rest != nil {
			t.Errorf("Expected no carry, got %q", rest)
		}
	})

	t.Run("Oversized carry is dropped", func(t *testing.T) {
		junk := bytes.Repeat([]byte{'x'}, MaxCarry+1)
		lines, rest := SplitPayload(nil, junk)
		if len(lines) != 0 {
			t.Fatalf("Expected no lines, got %d", len(lines))
		}
		if rest != nil {
			t.Errorf("Expected oversized carry dropped, got %d bytes", len(rest))
		}
	})

	t.Run("Carry at the limit survives", func(t *testing.T) {
		junk := []byte(strings.Repeat("y", MaxCarry))
		_, rest := SplitPayload(nil, junk)
		if len(rest) != MaxCarry {
			t.Errorf("Expected %d byte carry, got %d", MaxCarry, len(rest))
		}
	})
}
