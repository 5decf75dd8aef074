// dump_sample runs the seed and the store inspector, writing all output to
// cmd/sample_run_output.txt. Run from repo root: go run ./cmd/dump_sample
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	storeFile  = "sample.db"
	outputFile = "cmd/sample_run_output.txt"
)

func main() {
	outPath := outputFile
	// If run from cmd/dump_sample, output next to binary
	if _, err := os.Stat("cmd"); os.IsNotExist(err) {
		outPath = "sample_run_output.txt"
	}

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	root := repoRoot()
	store := filepath.Join(root, storeFile)
	// Clean previous run so seed starts fresh
	os.Remove(store)

	steps := []struct {
		title string
		args  []string
	}{
		{"SEED (keys 1..60, every third deleted)", []string{"run", "./cmd/seed", "-file", store, "-n", "60"}},
		{"INSPECT " + storeFile, []string{"run", "./cmd/inspect_store", store}},
	}
	for _, step := range steps {
		fmt.Fprintf(f, "========== %s ==========\n", step.title)
		cmd := exec.Command("go", step.args...)
		cmd.Stdout = f
		cmd.Stderr = f
		cmd.Dir = root
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(f, "%s exited with error: %v\n", step.args[1], err)
		}
		fmt.Fprintln(f)
	}

	fmt.Printf("Output written to %s\n", outPath)
}

func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
