package loadtest

import "time"

// Config holds configuration for a load test run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Secret       string        // JWT secret shared with the service
	Clubs        int           // Clubs of the seeded league
	TeamsPerClub int           // Teams per club of the seeded league
	Rounds       int           // How many times every captain searches
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Verbose      bool          // Enable verbose logging
}

// Stats holds test statistics.
type Stats struct {
	Searches    int
	Matched     int
	NoOpponent  int
	Conflicts   int
	Rejected    int
	Failed      int
	TeamsRead   int
	OpenMatches int
	Violations  int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}

// findResult classifies one search.
type findResult int

const (
	resultMatched findResult = iota
	resultNoOpponent
	resultConflict
	resultRejected
	resultFailed
)
