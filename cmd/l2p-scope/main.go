package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/l2p-scope/internal/app"
	"github.com/unklstewy/l2p-scope/pkg/config"
	"github.com/unklstewy/l2p-scope/pkg/coordinates"
	"github.com/unklstewy/l2p-scope/pkg/ingest"
	"github.com/unklstewy/l2p-scope/pkg/l2p"
	"github.com/unklstewy/l2p-scope/pkg/logging"
	"github.com/unklstewy/l2p-scope/pkg/tracking"
)

// Sky viewport dimensions
const (
	skyWidth  = 80
	skyHeight = 30
)

type model struct {
	cfg *config.Config
	sup *ingest.Supervisor

	tracks    []tracking.Track
	telescope l2p.TelescopeStatus
	stats     ingest.Stats
	state     ingest.State

	selected int
	followID string
	zoom     float64
	minEl    float64
	tick     time.Duration
}

type tickMsg time.Time

func tickAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tickAfter(m.tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.tracks)-1 {
				m.selected++
			}
		case "enter", " ":
			if len(m.tracks) > 0 && m.selected < len(m.tracks) {
				m.followID = m.tracks[m.selected].ID
			}
		case "s":
			m.followID = ""
		case "c":
			m.sup.ClearTracks()
			m.refresh()
		case "r":
			m.sup.RequestReconnect()
		case "+", "=":
			if m.zoom < 4.0 {
				m.zoom *= 1.5
			}
		case "-", "_":
			if m.zoom > 0.5 {
				m.zoom /= 1.5
			}
		case "0":
			m.zoom = 1.0
		}

	case tickMsg:
		m.refresh()
		return m, tickAfter(m.tick)
	}

	return m, nil
}

// refresh pulls the engine's current picture into the model.
func (m *model) refresh() {
	m.tracks = m.sup.Snapshot()
	m.telescope = m.sup.TelescopeStatus()
	m.stats = m.sup.Stats()
	m.state = m.sup.State()

	if m.selected >= len(m.tracks) {
		m.selected = len(m.tracks) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// newestEpoch is the reference time for staleness display. The feed
// carries its own clock, so age is measured against the freshest
// record rather than the wall clock.
func (m model) newestEpoch() float64 {
	newest := 0.0
	for _, t := range m.tracks {
		if t.LastEpoch > newest {
			newest = t.LastEpoch
		}
	}
	if m.telescope.Epoch > newest {
		newest = m.telescope.Epoch
	}
	return newest
}

func (m model) View() string {
	var s strings.Builder

	// Header
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	s.WriteString(titleStyle.Render("L2P-SCOPE SKY VIEW"))
	s.WriteString("  ")
	s.WriteString(m.renderState())
	s.WriteString("\n\n")

	// Sky and legend side by side
	sky := m.renderSky()
	legend := m.renderLegend()

	skyLines := strings.Split(sky, "\n")
	legendLines := strings.Split(legend, "\n")

	maxLines := len(skyLines)
	if len(legendLines) > maxLines {
		maxLines = len(legendLines)
	}

	for i := 0; i < maxLines; i++ {
		if i < len(skyLines) {
			s.WriteString(skyLines[i])
		} else {
			s.WriteString(strings.Repeat(" ", skyWidth))
		}
		s.WriteString("  ")
		if i < len(legendLines) {
			s.WriteString(legendLines[i])
		}
		s.WriteString("\n")
	}

	// Track list
	s.WriteString(m.renderTrackList())
	s.WriteString("\n")

	// Controls
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	s.WriteString(helpStyle.Render("↑/↓: Select  ENTER/SPACE: Follow  S: Stop  C: Clear  R: Reconnect  +/-: Zoom  0: Reset  Q: Quit"))
	s.WriteString("\n")

	return s.String()
}

func (m model) renderState() string {
	switch m.state {
	case ingest.StateRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Render("● RUNNING")
	case ingest.StateReconnecting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Render("● RECONNECTING")
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("● STOPPED")
	}
}

func (m model) renderSky() string {
	var sky strings.Builder

	// Draw border
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sky.WriteString(borderStyle.Render("┌" + strings.Repeat("─", skyWidth-2) + "┐"))
	sky.WriteString("\n")

	// Create sky grid
	grid := make([][]rune, skyHeight)
	for i := range grid {
		grid[i] = make([]rune, skyWidth)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	// Draw horizon line at zero elevation
	if _, hy := m.elAzToScreen(0, 0); hy >= 0 && hy < skyHeight {
		for x := 0; x < skyWidth; x++ {
			grid[hy][x] = '·'
		}
	}

	// Draw cardinal directions
	grid[skyHeight-1][0] = 'N'
	grid[skyHeight-1][skyWidth/4] = 'E'
	grid[skyHeight-1][skyWidth/2] = 'S'
	grid[skyHeight-1][skyWidth*3/4] = 'W'

	// Draw sample trails. Each track carries its own history, so the
	// breadcrumbs need no extra bookkeeping here.
	for _, t := range m.tracks {
		for i := 0; i < len(t.Samples)-1; i++ {
			smp := t.Samples[i]
			x, y := m.elAzToScreen(smp.Elevation, coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(smp.Azimuth)))
			if x >= 0 && x < skyWidth && y >= 0 && y < skyHeight {
				if grid[y][x] == ' ' || grid[y][x] == '·' {
					grid[y][x] = '·'
				}
			}
		}
	}

	// Draw mount crosshair from the feed's telescope report
	tx, ty := m.elAzToScreen(m.telescope.Elevation, m.telescope.Azimuth)
	if tx >= 0 && tx < skyWidth && ty >= 0 && ty < skyHeight {
		grid[ty][tx] = '+'
	}

	// Draw current positions
	for i, t := range m.tracks {
		last, ok := t.LastSample()
		if !ok {
			continue
		}

		x, y := m.elAzToScreen(last.Elevation, coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(last.Azimuth)))
		if x >= 0 && x < skyWidth && y >= 0 && y < skyHeight {
			symbol := '○'
			if i == m.selected {
				symbol = '●'
			}
			if m.followID != "" && t.ID == m.followID {
				symbol = '◉'
			}
			grid[y][x] = symbol
		}
	}

	// Render grid
	for y := 0; y < skyHeight; y++ {
		sky.WriteString(borderStyle.Render("│"))
		for x := 0; x < skyWidth-2; x++ {
			char := grid[y][x]
			switch char {
			case '+':
				sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render(string(char)))
			case '◉':
				sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true).Render(string(char)))
			case '●':
				sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Render(string(char)))
			case '○':
				sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Render(string(char)))
			case 'N', 'E', 'S', 'W':
				sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(string(char)))
			case '·':
				sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(string(char)))
			default:
				sky.WriteRune(char)
			}
		}
		sky.WriteString(borderStyle.Render("│"))
		sky.WriteString("\n")
	}

	sky.WriteString(borderStyle.Render("└" + strings.Repeat("─", skyWidth-2) + "┘"))

	return sky.String()
}

// elAzToScreen maps elevation (degrees above horizon) and azimuth
// (degrees from north) to grid coordinates. North is the left edge.
func (m model) elAzToScreen(elevation, azimuth float64) (int, int) {
	azimuth = coordinates.NormalizeAzimuthDeg(azimuth)
	x := int((azimuth / 360.0) * float64(skyWidth-2))

	// Zoom compresses the visible elevation band above the admission
	// horizon.
	elRange := (90.0 - m.minEl) / m.zoom
	if elRange <= 0 {
		elRange = 90
	}
	normalized := (elevation - m.minEl) / elRange
	y := skyHeight - 1 - int(normalized*float64(skyHeight-1))

	return x, y
}

func (m model) renderTrackList() string {
	var list strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	list.WriteString(headerStyle.Render("Tracks:"))
	list.WriteString(fmt.Sprintf(" (%d)", len(m.tracks)))
	list.WriteString("\n\n")

	if len(m.tracks) == 0 {
		list.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("  No aircraft above the horizon"))
		list.WriteString("\n")
		return list.String()
	}

	// Show up to 5 tracks, keeping the selection in view
	start := 0
	if m.selected > 2 && len(m.tracks) > 5 {
		start = m.selected - 2
	}
	end := start + 5
	if end > len(m.tracks) {
		end = len(m.tracks)
	}

	newest := m.newestEpoch()

	for i := start; i < end; i++ {
		t := m.tracks[i]
		last, ok := t.LastSample()
		if !ok {
			continue
		}

		prefix := "  "
		if i == m.selected {
			prefix = "→ "
		}

		followIndicator := ""
		if m.followID != "" && t.ID == m.followID {
			followIndicator = " [FOLLOWING]"
		}
		gapIndicator := ""
		if t.Gap {
			gapIndicator = " [GAP]"
		}

		callsign := t.Callsign
		if callsign == "" {
			callsign = "--------"
		}

		age := newest - t.LastEpoch
		if age < 0 {
			age = 0
		}

		line := fmt.Sprintf("%s%-8s %-6s  El:%5.1f° Az:%5.1f°  %6.0f m  %6.1f km  %3d pts  %4.0fs%s%s",
			prefix,
			callsign,
			t.ID,
			last.Elevation,
			coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(last.Azimuth)),
			last.Altitude,
			last.Range,
			len(t.Samples),
			age,
			gapIndicator,
			followIndicator,
		)

		if i == m.selected {
			line = lipgloss.NewStyle().
				Background(lipgloss.Color("237")).
				Render(line)
		}

		list.WriteString(line)
		list.WriteString("\n")
	}

	// Mount position and follow target
	list.WriteString("\n")
	mountStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	validity := "valid"
	if !m.telescope.Valid {
		validity = "INVALID"
	}
	list.WriteString(mountStyle.Render(fmt.Sprintf("Mount: Az %.1f°  El %.1f°  (%s)  Zoom: %.1fx",
		m.telescope.Azimuth, m.telescope.Elevation, validity, m.zoom)))

	if m.followID != "" {
		for _, t := range m.tracks {
			if t.ID != m.followID {
				continue
			}
			if last, ok := t.LastSample(); ok {
				targetStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
				list.WriteString("\n")
				list.WriteString(targetStyle.Render(fmt.Sprintf("Target %s: Az %.1f°  El %.1f°  peak El %.1f°",
					t.ID,
					coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(last.Azimuth)),
					last.Elevation,
					t.MaxElevation)))
			}
			break
		}
	}

	return list.String()
}

// renderLegend renders the side panel with symbols and feed counters
func (m model) renderLegend() string {
	var leg strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	leg.WriteString(headerStyle.Render("Legend"))
	leg.WriteString("\n\n")

	leg.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Render("○"))
	leg.WriteString(" Track\n")
	leg.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Render("●"))
	leg.WriteString(" Selected\n")
	leg.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true).Render("◉"))
	leg.WriteString(" Following\n")
	leg.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("+"))
	leg.WriteString(" Mount\n")
	leg.WriteString("· Trail\n")
	leg.WriteString("\n")

	leg.WriteString(headerStyle.Render("Feed"))
	leg.WriteString("\n")
	leg.WriteString(fmt.Sprintf("Lines     %d\n", m.stats.Lines))
	leg.WriteString(fmt.Sprintf("Positions %d\n", m.stats.Positions))
	leg.WriteString(fmt.Sprintf("Mount     %d\n", m.stats.TelescopeUpdates))
	leg.WriteString(fmt.Sprintf("Dropped   %d\n", m.stats.UnknownLines+m.stats.MalformedRecords))
	leg.WriteString(fmt.Sprintf("Reconnect %d\n", m.stats.Reconnects))
	leg.WriteString("\n")

	leg.WriteString(headerStyle.Render("Tracking"))
	leg.WriteString("\n")
	leg.WriteString(fmt.Sprintf("Admitted  %d\n", m.stats.Tracking.Admitted))
	leg.WriteString(fmt.Sprintf("Low-el    %d\n", m.stats.Tracking.FilteredLowElevation))
	leg.WriteString(fmt.Sprintf("Gap drops %d\n", m.stats.Tracking.GapDiscards))
	leg.WriteString(fmt.Sprintf("Evicted   %d\n", m.stats.Tracking.Evicted))

	return leg.String()
}

// logWriter forwards teed payloads into the session log so a TUI run
// can still capture raw lines without corrupting the display.
type logWriter struct {
	log *logging.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Debugf("feed payload: %s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	replayFile := flag.String("replay", "", "Replay a recorded feed file instead of connecting live")
	recordPath := flag.String("record", "", "Also append raw payloads to this dump file")
	printLines := flag.Bool("print-lines", false, "Write received payloads to the session log")
	intervalMS := flag.Int("interval", 0, "Display refresh interval in ms (default 1000)")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *replayFile != "" {
		cfg.Replay.File = *replayFile
	}
	if *intervalMS > 0 {
		cfg.Replay.IntervalMS = *intervalMS
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the TUI; logs go to the file only.
	log := logging.New(logging.Options{
		Path:  cfg.Logging.File,
		Level: cfg.Logging.Level,
	})

	sup, rec, err := app.BuildSupervisor(cfg, log, *recordPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build feed engine: %v\n", err)
		os.Exit(1)
	}
	if *printLines {
		var w io.Writer = logWriter{log: log}
		if rec != nil {
			w = io.MultiWriter(rec, logWriter{log: log})
		}
		sup.Record(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	tick := time.Second
	if *intervalMS > 0 {
		tick = time.Duration(*intervalMS) * time.Millisecond
	}

	m := model{
		cfg:   cfg,
		sup:   sup,
		zoom:  1.0,
		minEl: cfg.Tracks.MinElevationDeg,
		tick:  tick,
	}
	m.refresh()

	// Start TUI
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sup.Stop()
	if rec != nil {
		if err := rec.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close dump file: %v\n", err)
		}
	}
}
