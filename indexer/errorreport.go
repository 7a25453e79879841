package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/antflydb/vecindex/resume"
)

// ErrorReport is the immutable on-disk record of a single failed flush.
// CorrelationID is a random id that writeErrorReport assigns when it is
// empty, so each report carries its own id for matching it against logs.
type ErrorReport struct {
	CorrelationID  string            `yaml:"correlation_id"`
	ModelName      string            `yaml:"model_name"`
	CollectionName string            `yaml:"collection_name"`
	Reason         string            `yaml:"reason"`
	SourceCSV      string            `yaml:"source_csv"`
	BatchSize      int               `yaml:"batch_size"`
	DocumentIDs    []string          `yaml:"document_ids"`
	Documents      []string          `yaml:"documents"`
	Metadatas      []map[string]any  `yaml:"metadatas"`
	RowNumbers     []int             `yaml:"row_numbers"`
	TokenCounts    []int             `yaml:"token_counts"`
	TokenTotal     int               `yaml:"token_total"`
	ResumeState    resume.ModelState `yaml:"resume_state"`
	ExceptionType  string            `yaml:"exception_type"`
	ExceptionMsg   string            `yaml:"exception_message"`
	Traceback      string            `yaml:"traceback,omitempty"`
	Timestamp      string            `yaml:"timestamp"`
}

// maxDocumentChars bounds each reported document body so a failed batch
// of large documents cannot balloon the report file.
const maxDocumentChars = 1000

func truncateForReport(s string) string {
	r := []rune(s)
	if len(r) <= maxDocumentChars {
		return s
	}
	return string(r[:maxDocumentChars])
}

// writeErrorReport serialises report to
// <outRoot>/<partition>/errors/<model>_<UTC-timestamp>.yaml.
func writeErrorReport(outRoot, partition string, report ErrorReport) (string, error) {
	if report.CorrelationID == "" {
		report.CorrelationID = uuid.NewString()
	}
	dir := filepath.Join(outRoot, partition, "errors")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating error report directory: %w", err)
	}

	ts := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.yaml", report.ModelName, ts))

	b, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshalling error report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("writing error report %s: %w", path, err)
	}
	return path, nil
}
