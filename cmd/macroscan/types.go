package main

import "github.com/jward/macroscan"

// CLIResult is the top-level JSON envelope for scan, show and watch output.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIScan is the result of one scan: the run summary and the result of
// every file the run considered.
type CLIScan struct {
	Summary *macroscan.RunSummary   `json:"summary"`
	Files   []*macroscan.FileResult `json:"files"`
}
