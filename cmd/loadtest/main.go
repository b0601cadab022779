package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/padel/internal/loadtest"
)

// Default configuration constants.
const (
	defaultClubs        = 4
	defaultTeamsPerClub = 12
	defaultRounds       = 3
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultTestTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		secret  = flag.String("secret", os.Getenv("PADEL_JWT_SECRET"), "JWT secret of the service")
		clubs   = flag.Int("clubs", defaultClubs, "Clubs of the seeded league")
		teams   = flag.Int("teams", defaultTeamsPerClub, "Teams per club of the seeded league")
		rounds  = flag.Int("rounds", defaultRounds, "Searches per captain")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile = flag.String("log", "", "Log file for test output (default: loadtest_TIMESTAMP.log)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}
	if *secret == "" {
		*secret = "change-me"
	}

	closer, err := loadtest.SetupLogging(*logFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &loadtest.Config{
		BaseURL:      *baseURL,
		Secret:       *secret,
		Clubs:        *clubs,
		TeamsPerClub: *teams,
		Rounds:       *rounds,
		Workers:      *workers,
		Timeout:      *timeout,
		Verbose:      *verbose,
	}

	if _, err := loadtest.Run(ctx, config); err != nil {
		_, _ = os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		cancel()
		_ = closer.Close()
		os.Exit(1) //nolint:gocritic // deferred calls already run above
	}
}
