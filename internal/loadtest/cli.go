package loadtest

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/padel/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging logs to stdout and to logFile. An empty logFile gets a
// timestamped name.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		logFile = "loadtest_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Padel League Load Test
======================

Hammers POST /v1/matches/find with every captain of the seeded demo league
and checks that no team ends up in two open matches.

Usage:
  go run ./cmd/loadtest [options]

Options:
  -url string       Base URL of the service (default "http://localhost:9080")
  -secret string    JWT secret of the service (default $PADEL_JWT_SECRET)
  -clubs int        Clubs of the seeded league (default 4)
  -teams int        Teams per club of the seeded league (default 12)
  -rounds int       Searches per captain (default 3)
  -workers int      Concurrent workers
  -timeout duration HTTP request timeout (default 30s)
  -log string       Log file (default loadtest_TIMESTAMP.log)
  -verbose          Log every request
  -help             Show help

The server must run with PADEL_SEED_CLUBS and PADEL_SEED_TEAMS_PER_CLUB
matching -clubs and -teams.
`)
}
