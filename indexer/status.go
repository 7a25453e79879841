package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/antflydb/vecindex/resume"
)

// Status is the closed set of per-model classifications the status
// operation reports.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusStarted    Status = "STARTED"
	StatusComplete   Status = "COMPLETE"
	StatusErrored    Status = "ERRORED"
)

// Classify derives a model's status from its resume state and the
// contents of its partition's errors directory: ERRORED iff the errors
// directory is non-empty and the maximum row_index across error reports
// is >= the current resume row_index, meaning the indexer has not
// progressed past the last recorded failure.
func Classify(outRoot, partition, model string, state resume.ModelState) (Status, error) {
	if state.Complete {
		return StatusComplete, nil
	}
	if !state.Started {
		return StatusNotStarted, nil
	}

	maxErrorRowIndex, hasErrors, err := maxErrorRowIndexForModel(outRoot, partition, model)
	if err != nil {
		return "", err
	}
	if hasErrors && maxErrorRowIndex >= state.RowIndex {
		return StatusErrored, nil
	}
	return StatusStarted, nil
}

// maxErrorRowIndexForModel scans <outRoot>/<partition>/errors/<model>_*.yaml
// and returns the highest resume_state.row_index recorded across them.
func maxErrorRowIndexForModel(outRoot, partition, model string) (int, bool, error) {
	dir := filepath.Join(outRoot, partition, "errors")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading errors directory: %w", err)
	}

	prefix := model + "_"
	max := 0
	found := false
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var report ErrorReport
		if err := yaml.Unmarshal(b, &report); err != nil {
			continue
		}
		found = true
		if report.ResumeState.RowIndex > max {
			max = report.ResumeState.RowIndex
		}
	}
	return max, found, nil
}
