package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/l2p-scope/pkg/config"
	"github.com/unklstewy/l2p-scope/pkg/coordinates"
	"github.com/unklstewy/l2p-scope/pkg/ingest"
	"github.com/unklstewy/l2p-scope/pkg/l2p"
	"github.com/unklstewy/l2p-scope/pkg/logging"
	"github.com/unklstewy/l2p-scope/pkg/tracking"
)

// ConsoleConfig holds the application configuration
type ConsoleConfig struct {
	Config     *config.Config
	ConfigPath string
	Supervisor *ingest.Supervisor
	Recorder   *l2p.Recorder
	Log        *logging.Logger
}

// Console is the split-pane terminal application
type Console struct {
	// Configuration
	cfg        *config.Config
	configPath string
	log        *logging.Logger

	// Data source
	sup *ingest.Supervisor

	// UI components
	tviewApp   *tview.Application
	trackView  *tview.TextView
	telemetry  *tview.TextView
	controls   *tview.TextView
	feed       *tview.TextView
	rootLayout *tview.Flex

	// State
	tracks        []tracking.Track
	telescope     l2p.TelescopeStatus
	stats         ingest.Stats
	state         ingest.State
	selectedIndex int
	followID      string

	// Synchronization
	mu          sync.RWMutex
	updateTimer *time.Ticker
	stopChan    chan struct{}
}

// NewConsole creates a new console instance
func NewConsole(cfg *ConsoleConfig) *Console {
	c := &Console{
		cfg:        cfg.Config,
		configPath: cfg.ConfigPath,
		log:        cfg.Log,
		sup:        cfg.Supervisor,
		tracks:     make([]tracking.Track, 0),
		stopChan:   make(chan struct{}),
	}

	c.setupUI()

	// Tee raw payloads into the feed pane, keeping any dump recording
	// the supervisor was built with.
	var w io.Writer = feedPaneWriter{feed: c.feed}
	if cfg.Recorder != nil {
		w = io.MultiWriter(cfg.Recorder, feedPaneWriter{feed: c.feed})
	}
	c.sup.Record(w)

	return c
}

// feedPaneWriter drops raw payload bytes into the feed pane as they
// arrive. TextView handles concurrent writes.
type feedPaneWriter struct {
	feed *tview.TextView
}

func (w feedPaneWriter) Write(p []byte) (int, error) {
	fmt.Fprint(w.feed, tview.Escape(string(p)))
	return len(p), nil
}

// setupUI initializes the user interface
func (c *Console) setupUI() {
	c.tviewApp = tview.NewApplication()

	// Create panels
	c.createTrackPanel()
	c.createTelemetryPanel()
	c.createControlsPanel()
	c.createFeedPanel()

	// Create layout
	c.createLayout()

	// Setup keyboard handlers
	c.tviewApp.SetInputCapture(c.handleKeyboard)
}

// createTrackPanel creates the main track table panel
func (c *Console) createTrackPanel() {
	c.trackView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	c.trackView.SetBorder(true).SetTitle(" Tracks ")
}

// createTelemetryPanel creates the telemetry info panel
func (c *Console) createTelemetryPanel() {
	c.telemetry = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	c.telemetry.SetBorder(true).SetTitle(" Telemetry ")
}

// createControlsPanel creates the controls/shortcuts panel
func (c *Console) createControlsPanel() {
	c.controls = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	c.controls.SetBorder(true).SetTitle(" Controls ")

	// Set static controls text
	controlsText := `[yellow]NAVIGATION[-]
  [white]↑/↓, j/k[-]  Select

[yellow]ACTIONS[-]
  [white]ENTER[-]     Follow
  [white]SPACE[-]     Stop
  [white]c[-]         Clear tracks
  [white]r[-]         Reconnect

[yellow]CONTROL[-]
  [white]q/ESC[-]     Quit`

	c.controls.SetText(controlsText)
}

// createFeedPanel creates the raw feed viewer panel
func (c *Console) createFeedPanel() {
	c.feed = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(100)
	c.feed.SetBorder(true).SetTitle(" Raw Feed ")
	c.feed.ScrollToEnd()
	c.feed.SetChangedFunc(func() {
		c.tviewApp.Draw()
	})
}

// createLayout creates the main layout with 4 panels
func (c *Console) createLayout() {
	// Right sidebar with 3 panels
	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.telemetry, 0, 4, false). // 40% of sidebar
		AddItem(c.controls, 0, 3, false).  // 30% of sidebar
		AddItem(c.feed, 0, 3, false)       // 30% of sidebar

	// Main layout: track table (70%) + sidebar (30%)
	c.rootLayout = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(c.trackView, 0, 7, true). // 70% width, focusable
		AddItem(sidebar, 0, 3, false)     // 30% width

	c.tviewApp.SetRoot(c.rootLayout, true)
}

// handleKeyboard handles keyboard input. It runs on tview's event
// loop, so the handlers repaint the panes directly.
func (c *Console) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	key := event.Key()
	ch := event.Rune()

	switch {
	// Quit
	case key == tcell.KeyEscape || ch == 'q':
		c.Stop()
		return nil

	// Navigation
	case key == tcell.KeyUp || ch == 'k':
		c.selectPrevious()
		return nil
	case key == tcell.KeyDown || ch == 'j':
		c.selectNext()
		return nil

	// Actions
	case key == tcell.KeyEnter:
		c.startFollowing()
		return nil
	case ch == ' ':
		c.stopFollowing()
		return nil
	case ch == 'c':
		c.clearTracks()
		return nil
	case ch == 'r':
		c.requestReconnect()
		return nil
	}

	return event
}

// selectPrevious selects the previous track
func (c *Console) selectPrevious() {
	c.mu.Lock()
	if len(c.tracks) == 0 {
		c.mu.Unlock()
		return
	}
	c.selectedIndex--
	if c.selectedIndex < 0 {
		c.selectedIndex = len(c.tracks) - 1
	}
	c.mu.Unlock()

	c.updateTrackView()
	c.updateTelemetry()
}

// selectNext selects the next track
func (c *Console) selectNext() {
	c.mu.Lock()
	if len(c.tracks) == 0 {
		c.mu.Unlock()
		return
	}
	c.selectedIndex++
	if c.selectedIndex >= len(c.tracks) {
		c.selectedIndex = 0
	}
	c.mu.Unlock()

	c.updateTrackView()
	c.updateTelemetry()
}

// startFollowing follows the selected track
func (c *Console) startFollowing() {
	c.mu.Lock()
	if c.selectedIndex < 0 || c.selectedIndex >= len(c.tracks) {
		c.mu.Unlock()
		return
	}
	t := c.tracks[c.selectedIndex]
	c.followID = t.ID
	c.mu.Unlock()

	c.log.Infof("following track %s (%s)", t.ID, t.Callsign)
	c.updateTrackView()
	c.updateTelemetry()
}

// stopFollowing stops following
func (c *Console) stopFollowing() {
	c.mu.Lock()
	if c.followID == "" {
		c.mu.Unlock()
		return
	}
	c.followID = ""
	c.mu.Unlock()

	c.log.Infof("stopped following")
	c.updateTrackView()
	c.updateTelemetry()
}

// clearTracks drops the live track table
func (c *Console) clearTracks() {
	c.sup.ClearTracks()
	c.log.Infof("track table cleared")
	c.pull()
	c.updateTrackView()
	c.updateTelemetry()
}

// requestReconnect asks the engine to rebuild its transport
func (c *Console) requestReconnect() {
	c.sup.RequestReconnect()
	c.log.Infof("reconnect requested")
}

// Run starts the application
func (c *Console) Run() error {
	// Start data update goroutine
	c.updateTimer = time.NewTicker(time.Second)
	go c.updateLoop()

	// Run the tview application
	return c.tviewApp.Run()
}

// updateLoop periodically refreshes the engine snapshot
func (c *Console) updateLoop() {
	// Initial update
	c.refresh()

	for {
		select {
		case <-c.updateTimer.C:
			c.refresh()
		case <-c.stopChan:
			return
		}
	}
}

// pull copies the engine's current picture into the console state.
func (c *Console) pull() {
	tracks := c.sup.Snapshot()

	c.mu.Lock()
	c.tracks = tracks
	c.telescope = c.sup.TelescopeStatus()
	c.stats = c.sup.Stats()
	c.state = c.sup.State()

	// Adjust selection if the track list changed
	if c.selectedIndex >= len(c.tracks) {
		if len(c.tracks) > 0 {
			c.selectedIndex = len(c.tracks) - 1
		} else {
			c.selectedIndex = 0
		}
	}
	c.mu.Unlock()
}

// refresh pulls the engine's current picture and redraws. It runs off
// the event loop, so the repaint goes through QueueUpdateDraw.
func (c *Console) refresh() {
	c.pull()

	c.tviewApp.QueueUpdateDraw(func() {
		c.updateTrackView()
		c.updateTelemetry()
	})
}

// newestEpoch is the staleness reference: the freshest feed time seen.
func (c *Console) newestEpoch() float64 {
	newest := 0.0
	for _, t := range c.tracks {
		if t.LastEpoch > newest {
			newest = t.LastEpoch
		}
	}
	if c.telescope.Epoch > newest {
		newest = c.telescope.Epoch
	}
	return newest
}

// updateTrackView renders the track table
func (c *Console) updateTrackView() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var text strings.Builder
	text.WriteString(fmt.Sprintf("[yellow]%-9s %-7s %7s %7s %9s %9s %5s %6s[-]\n",
		"CALLSIGN", "ID", "EL°", "AZ°", "ALT m", "RNG km", "PTS", "AGE s"))

	newest := c.newestEpoch()

	for i, t := range c.tracks {
		last, ok := t.LastSample()
		if !ok {
			continue
		}

		age := newest - t.LastEpoch
		if age < 0 {
			age = 0
		}

		flags := ""
		if t.Gap {
			flags += " [red]GAP[-]"
		}
		if c.followID != "" && t.ID == c.followID {
			flags += " [green]FOLLOW[-]"
		}

		callsign := t.Callsign
		if callsign == "" {
			callsign = "--------"
		}

		line := fmt.Sprintf("%-9s %-7s %7.1f %7.1f %9.0f %9.1f %5d %6.0f%s",
			callsign,
			t.ID,
			last.Elevation,
			coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(last.Azimuth)),
			last.Altitude,
			last.Range,
			len(t.Samples),
			age,
			flags,
		)

		if i == c.selectedIndex {
			text.WriteString("[black:aqua]" + line + "[-:-]\n")
		} else {
			text.WriteString(line + "\n")
		}
	}

	if len(c.tracks) == 0 {
		text.WriteString("\n[gray]No aircraft above the horizon[-]\n")
	}

	c.trackView.SetText(text.String())
}

// updateTelemetry updates the telemetry panel content
func (c *Console) updateTelemetry() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var text string

	// Selected track section
	if c.selectedIndex >= 0 && c.selectedIndex < len(c.tracks) {
		t := c.tracks[c.selectedIndex]
		text += fmt.Sprintf("[yellow]TRACK:[-] [white]%s[-] [gray](%s)[-]\n", t.Callsign, t.ID)
		if last, ok := t.LastSample(); ok {
			text += fmt.Sprintf("[gray]El:[-]   [white]%.1f°[-]   [gray]Az:[-] [white]%.1f°[-]\n",
				last.Elevation, coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(last.Azimuth)))
			text += fmt.Sprintf("[gray]Alt:[-]  [white]%.0f m[-]  [gray]Rng:[-] [white]%.1f km[-]\n",
				last.Altitude, last.Range)
			text += fmt.Sprintf("[gray]Pos:[-]  [white]%.4f°, %.4f°[-]\n", last.Latitude, last.Longitude)
		}
		text += fmt.Sprintf("[gray]Peak El:[-] [white]%.1f°[-]  [gray]Pts:[-] [white]%d[-]\n",
			t.MaxElevation, len(t.Samples))
	} else {
		text += "[gray]No track selected[-]\n"
	}

	text += "\n"

	// Mount section
	validity := "[green]valid[-]"
	if !c.telescope.Valid {
		validity = "[red]INVALID[-]"
	}
	text += fmt.Sprintf("[yellow]MOUNT:[-] [white]Az %.1f°  El %.1f°[-] %s\n",
		c.telescope.Azimuth, c.telescope.Elevation, validity)

	text += "\n"

	// Feed section
	text += fmt.Sprintf("[yellow]FEED:[-] %s\n", c.stateTag())
	text += fmt.Sprintf("[gray]Lines:[-] [white]%d[-]  [gray]Pos:[-] [white]%d[-]\n",
		c.stats.Lines, c.stats.Positions)
	text += fmt.Sprintf("[gray]Dropped:[-] [white]%d[-]  [gray]Reconnects:[-] [white]%d[-]\n",
		c.stats.UnknownLines+c.stats.MalformedRecords, c.stats.Reconnects)
	text += fmt.Sprintf("[gray]Tracks:[-] [white]%d[-]\n", len(c.tracks))

	text += "\n"

	// Station section
	text += fmt.Sprintf("[yellow]STATION:[-] [white]%s[-]\n", c.cfg.Station.Name)
	text += fmt.Sprintf("[gray]Pos:[-] [white]%.4f°, %.4f°[-]\n",
		c.cfg.Station.Latitude, c.cfg.Station.Longitude)
	text += fmt.Sprintf("[gray]Time:[-] [white]%s[-]\n", time.Now().Format("15:04:05"))

	c.telemetry.SetText(text)
}

// stateTag renders the engine state with a tview color tag
func (c *Console) stateTag() string {
	switch c.state {
	case ingest.StateRunning:
		return "[green]RUNNING[-]"
	case ingest.StateReconnecting:
		return "[yellow]RECONNECTING[-]"
	default:
		return "[red]STOPPED[-]"
	}
}

// Stop stops the application
func (c *Console) Stop() {
	// Stop update loop
	if c.updateTimer != nil {
		c.updateTimer.Stop()
	}
	close(c.stopChan)

	// Stop tview application
	c.tviewApp.Stop()
}
