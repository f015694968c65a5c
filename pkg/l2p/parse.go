package l2p

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/unklstewy/l2p-scope/pkg/coordinates"
)

// Token counts are the whole protocol: the feed has no framing beyond
// newlines and no type tags beyond line length.
const (
	positionTokens  = 13
	telescopeTokens = 6
	sentinelTokens  = 2
)

// ParseLine classifies one feed line by token count and decodes it.
// Lines with an unrecognized token count return ErrUnknownShape and are
// meant to be dropped silently; a recognized shape with a malformed
// numeric field returns a wrapped strconv error, which is worth a log
// notice because it means the feed format drifted.
func ParseLine(line []byte) (Record, error) {
	fields := strings.Fields(string(line))
	switch len(fields) {
	case positionTokens:
		return parsePosition(fields)
	case telescopeTokens:
		return parseTelescope(fields)
	case sentinelTokens:
		return ControlSentinel{Tokens: [2]string{fields[0], fields[1]}}, nil
	default:
		return nil, ErrUnknownShape
	}
}

// parsePosition decodes the 13-token aircraft line:
//
//	mjd epoch id callsign lat lon alt_ft range_km az_deg el_deg x y z
//
// The last three tokens are ignored.
func parsePosition(fields []string) (Record, error) {
	mjd, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("position MJD %q: %w", fields[0], err)
	}

	epoch, err := parseFloat("position epoch", fields[1])
	if err != nil {
		return nil, err
	}
	lat, err := parseFloat("position latitude", fields[4])
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("position longitude", fields[5])
	if err != nil {
		return nil, err
	}
	altFt, err := parseFloat("position altitude", fields[6])
	if err != nil {
		return nil, err
	}
	rng, err := parseFloat("position range", fields[7])
	if err != nil {
		return nil, err
	}
	azDeg, err := parseFloat("position azimuth", fields[8])
	if err != nil {
		return nil, err
	}
	elDeg, err := parseFloat("position elevation", fields[9])
	if err != nil {
		return nil, err
	}

	return PositionRecord{
		MJD:       mjd,
		Epoch:     epoch,
		ID:        fields[2],
		Callsign:  fields[3],
		Latitude:  lat,
		Longitude: lon,
		Altitude:  altFt * coordinates.FeetToMeters,
		Range:     rng,
		Azimuth:   coordinates.DegToRad(azDeg),
		Elevation: elDeg,
	}, nil
}

// parseTelescope decodes the 6-token mount status line:
//
//	mjd epoch tag az_deg el_deg validity
func parseTelescope(fields []string) (Record, error) {
	mjd, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("telescope MJD %q: %w", fields[0], err)
	}

	epoch, err := parseFloat("telescope epoch", fields[1])
	if err != nil {
		return nil, err
	}
	az, err := parseFloat("telescope azimuth", fields[3])
	if err != nil {
		return nil, err
	}
	el, err := parseFloat("telescope elevation", fields[4])
	if err != nil {
		return nil, err
	}

	return TelescopeStatus{
		MJD:       mjd,
		Epoch:     epoch,
		Tag:       fields[2],
		Azimuth:   az,
		Elevation: el,
		Valid:     fields[5][0] == '1',
	}, nil
}

// parseFloat decodes one numeric token, naming it in the error.
func parseFloat(name, tok string) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, tok, err)
	}
	return v, nil
}

// SplitPayload appends data to carry and splits the result into complete
// newline-terminated lines, returning the trailing partial line as the
// new carry. The server's fixed read size tears lines across reads; the
// carry is what keeps torn records whole. A carry that outgrows MaxCarry
// cannot be a feed line and is dropped.
func SplitPayload(carry, data []byte) (lines [][]byte, rest []byte) {
	buf := make([]byte, 0, len(carry)+len(data))
	buf = append(buf, carry...)
	buf = append(buf, data...)

	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if i > 0 {
			lines = append(lines, buf[:i])
		}
		buf = buf[i+1:]
	}

	if len(buf) == 0 || len(buf) > MaxCarry {
		return lines, nil
	}
	return lines, buf
}
