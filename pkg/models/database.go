package models

import "time"

// Run describes one invocation of the evaluation sweep.
type Run struct {
	ID           string // UUID
	Dataset      string // Base name of the testing data directory
	Checkpoint   string // Restored checkpoint path, empty when untrained
	ConfigDigest string // SHA-256 of the loaded configuration file
	StartedAt    time.Time
	Scenarios    int
}
