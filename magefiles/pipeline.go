//go:build mage

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// run builds the CLI if needed and invokes it with args.
func run(args ...string) error {
	mg.Deps(Build, Init)
	return sh.RunV(binPath, args...)
}

// Ingest stores the notes under $NOTES_DIR (default notes/).
func Ingest() error {
	dir := os.Getenv("NOTES_DIR")
	if dir == "" {
		dir = "notes"
	}
	return run("ingest", dir)
}

// Preprocess segments every current note.
func Preprocess() error { return run("preprocess") }

// Analyze clusters segments into themes.
func Analyze() error { return run("analyze") }

// Extract runs the rule-based extractor.
func Extract() error { return run("extract") }

// Generate builds, versions and writes the modules.
func Generate() error { return run("generate") }

// Verify checks the pipeline state.
func Verify() error { return run("verify") }

// Pipeline runs every stage in order, then verify.
func Pipeline() {
	mg.SerialDeps(Ingest, Preprocess, Analyze, Extract, Generate, Verify)
}
