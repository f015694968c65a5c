package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/unklstewy/l2p-scope/internal/app"
	"github.com/unklstewy/l2p-scope/pkg/config"
	"github.com/unklstewy/l2p-scope/pkg/logging"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	replayFile := flag.String("replay", "", "Replay a recorded feed file instead of connecting live")
	recordPath := flag.String("record", "", "Also append raw payloads to this dump file")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("feed-console version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Show help
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *replayFile != "" {
		cfg.Replay.File = *replayFile
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the console; logs go to the file only.
	log := logging.New(logging.Options{
		Path:  cfg.Logging.File,
		Level: cfg.Logging.Level,
	})

	// Wire the feed engine
	sup, rec, err := app.BuildSupervisor(cfg, log, *recordPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build feed engine: %v\n", err)
		os.Exit(1)
	}

	// Create and run the application
	console := NewConsole(&ConsoleConfig{
		Config:     cfg,
		ConfigPath: *configPath,
		Supervisor: sup,
		Recorder:   rec,
		Log:        log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	if err := console.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
	}

	sup.Stop()
	if rec != nil {
		if err := rec.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close dump file: %v\n", err)
		}
	}
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("feed-console - Split-pane terminal console for the listen2planes feed")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  feed-console [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to configuration file (default: configs/config.json)")
	fmt.Println("  -replay string")
	fmt.Println("        Replay a recorded feed file instead of connecting live")
	fmt.Println("  -record string")
	fmt.Println("        Also append raw payloads to this dump file")
	fmt.Println("  -version")
	fmt.Println("        Show version information")
	fmt.Println("  -help")
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println("KEYBOARD SHORTCUTS:")
	fmt.Println("  Navigation:")
	fmt.Println("    ↑/↓ or j/k     Select track")
	fmt.Println()
	fmt.Println("  Actions:")
	fmt.Println("    ENTER          Follow selected track")
	fmt.Println("    SPACE          Stop following")
	fmt.Println("    c              Clear the track table")
	fmt.Println("    r              Reconnect to the feed server")
	fmt.Println()
	fmt.Println("  Control:")
	fmt.Println("    q or ESC       Quit application")
	fmt.Println()
	fmt.Println("FEATURES:")
	fmt.Println("  - Live track table with per-track sample history")
	fmt.Println("  - Raw feed pane showing payloads as they arrive")
	fmt.Println("  - Mount position from the feed's telescope reports")
	fmt.Println("  - Optional dump recording for later replay")
	fmt.Println()
	fmt.Println("For more information, visit:")
	fmt.Println("  https://github.com/unklstewy/l2p-scope")
}
