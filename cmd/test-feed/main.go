package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/unklstewy/l2p-scope/internal/app"
	"github.com/unklstewy/l2p-scope/pkg/config"
	"github.com/unklstewy/l2p-scope/pkg/coordinates"
	"github.com/unklstewy/l2p-scope/pkg/l2p"
)

// main is a test program to verify listen2planes connectivity. It polls
// the feed for a few cycles, classifies every line, and prints what the
// station would ingest.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	replayFile := flag.String("replay", "", "Probe a recorded feed file instead of the live server")
	cycles := flag.Int("cycles", 5, "Number of poll cycles before reporting")
	flag.Parse()

	log.Println("listen2planes Feed Test")
	log.Println("=====================================")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *replayFile != "" {
		cfg.Replay.File = *replayFile
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Replay.File != "" {
		log.Printf("Source: recorded feed %s", cfg.Replay.File)
	} else {
		log.Printf("Source: %s:%d", cfg.Feed.Host, cfg.Feed.Port)
	}

	src, err := app.BuildSource(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to open feed source: %v", err)
	}
	defer src.Close()

	log.Printf("Polling %d cycles...", *cycles)
	log.Println("=====================================")

	var (
		carry      []byte
		positions  int
		telescopes int
		sentinels  int
		unknown    int
		malformed  int
	)

	for cycle := 1; cycle <= *cycles; cycle++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Feed.PollTimeout())
		payloads, err := src.Poll(ctx)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			log.Printf("Cycle %d: quiet, nothing arrived within the poll window", cycle)
			continue
		case errors.Is(err, l2p.ErrEndOfFeed):
			log.Printf("Cycle %d: recorded feed exhausted", cycle)
			cycle = *cycles
			continue
		default:
			log.Fatalf("Cycle %d: poll failed: %v", cycle, err)
		}

		for _, p := range payloads {
			if p.Err != nil {
				log.Fatalf("Cycle %d: transport failure: %v", cycle, p.Err)
			}

			var lines [][]byte
			lines, carry = l2p.SplitPayload(carry, p.Data)

			for _, line := range lines {
				rec, err := l2p.ParseLine(line)
				if errors.Is(err, l2p.ErrUnknownShape) {
					unknown++
					continue
				}
				if err != nil {
					malformed++
					log.Printf("  ✗ malformed line: %v", err)
					continue
				}

				switch r := rec.(type) {
				case l2p.PositionRecord:
					positions++
					log.Printf("\nAircraft %s:", r.ID)
					log.Printf("  Callsign:  %s", r.Callsign)
					log.Printf("  Position:  %.4f°, %.4f°", r.Latitude, r.Longitude)
					log.Printf("  Altitude:  %.0f m MSL", r.Altitude)
					log.Printf("  Range:     %.1f km", r.Range)
					azDeg := coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(r.Azimuth))
					log.Printf("  Azimuth:   %6.2f° (%s)", azDeg, azimuthToCardinal(azDeg))
					log.Printf("  Elevation: %6.2f°", r.Elevation)
					if r.Elevation > 0 {
						log.Printf("  Status:    VISIBLE")
					} else {
						log.Printf("  Status:    Below horizon")
					}
				case l2p.TelescopeStatus:
					telescopes++
					validity := "valid"
					if !r.Valid {
						validity = "INVALID"
					}
					log.Printf("\nMount %s: Az %.2f°  El %.2f°  (%s)", r.Tag, r.Azimuth, r.Elevation, validity)
				case l2p.ControlSentinel:
					sentinels++
					log.Printf("\nControl sentinel: %s %s", r.Tokens[0], r.Tokens[1])
				}
			}
		}
	}

	log.Println("\n=====================================")
	log.Printf("Positions:  %d", positions)
	log.Printf("Mount:      %d", telescopes)
	log.Printf("Sentinels:  %d", sentinels)
	log.Printf("Unknown:    %d", unknown)
	log.Printf("Malformed:  %d", malformed)
	log.Println("Test complete!")
}

// azimuthToCardinal converts azimuth in degrees to cardinal direction.
func azimuthToCardinal(azimuth float64) string {
	directions := []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
		"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}
	index := int((azimuth + 11.25) / 22.5)
	return directions[index%16]
}
