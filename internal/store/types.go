package store

import "time"

// File is one scanned source file. Error holds the message of the last
// failed scan; a file with an error has no replaces or removals.
type File struct {
	ID          int64
	Path        string
	Hash        string
	Dialect     string
	ConfigHash  string
	Error       string
	LastScanned time.Time
}

// Replace is a cached macro call site.
type Replace struct {
	ID         int64
	FileID     int64
	Ordinal    int
	Lo         uint32
	Hi         uint32
	ImportSrc  string
	ImportName string
}

// Removal is a cached import declaration range.
type Removal struct {
	ID      int64
	FileID  int64
	Ordinal int
	Lo      uint32
	Hi      uint32
}

// Run records one ScanFiles invocation.
type Run struct {
	ID         string
	Root       string
	ConfigHash string
	StartedAt  time.Time
	FinishedAt *time.Time
	Scanned    int
	Skipped    int
	Failed     int
}
