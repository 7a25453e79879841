package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/antflydb/vecindex/resume"
)

func writeReportFile(t *testing.T, outRoot, partition, name string, report ErrorReport) {
	t.Helper()
	dir := filepath.Join(outRoot, partition, "errors")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	b, err := yaml.Marshal(report)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), b, 0o644))
}

func TestClassify_WithoutErrorReports(t *testing.T) {
	outRoot := t.TempDir()

	status, err := Classify(outRoot, "partition_00001", "Table", resume.ModelState{})
	require.NoError(t, err)
	require.Equal(t, StatusNotStarted, status)

	status, err = Classify(outRoot, "partition_00001", "Table", resume.ModelState{Started: true, RowIndex: 10})
	require.NoError(t, err)
	require.Equal(t, StatusStarted, status)

	status, err = Classify(outRoot, "partition_00001", "Table", resume.ModelState{Started: true, Complete: true})
	require.NoError(t, err)
	require.Equal(t, StatusComplete, status)
}

func TestClassify_ErroredWhileBehindLastFailure(t *testing.T) {
	outRoot := t.TempDir()
	writeReportFile(t, outRoot, "partition_00001", "Table_20260101T000000Z.yaml", ErrorReport{
		ModelName:   "Table",
		ResumeState: resume.ModelState{RowIndex: 500},
	})

	status, err := Classify(outRoot, "partition_00001", "Table", resume.ModelState{Started: true, RowIndex: 500})
	require.NoError(t, err)
	require.Equal(t, StatusErrored, status)
}

func TestClassify_RevertsToStartedAfterProgress(t *testing.T) {
	// An error report at row 500 stops mattering once the resume state has
	// moved past it, without deleting the report.
	outRoot := t.TempDir()
	writeReportFile(t, outRoot, "partition_00001", "Table_20260101T000000Z.yaml", ErrorReport{
		ModelName:   "Table",
		ResumeState: resume.ModelState{RowIndex: 500},
	})

	status, err := Classify(outRoot, "partition_00001", "Table", resume.ModelState{Started: true, RowIndex: 700})
	require.NoError(t, err)
	require.Equal(t, StatusStarted, status)
	require.Len(t, errorReports(t, outRoot, "partition_00001"), 1)
}

func TestClassify_UsesMaxRowIndexAcrossReports(t *testing.T) {
	outRoot := t.TempDir()
	writeReportFile(t, outRoot, "partition_00001", "Table_20260101T000000Z.yaml", ErrorReport{
		ModelName:   "Table",
		ResumeState: resume.ModelState{RowIndex: 100},
	})
	writeReportFile(t, outRoot, "partition_00001", "Table_20260101T000100Z.yaml", ErrorReport{
		ModelName:   "Table",
		ResumeState: resume.ModelState{RowIndex: 900},
	})

	status, err := Classify(outRoot, "partition_00001", "Table", resume.ModelState{Started: true, RowIndex: 700})
	require.NoError(t, err)
	require.Equal(t, StatusErrored, status)
}

func TestClassify_IgnoresOtherModelsReports(t *testing.T) {
	outRoot := t.TempDir()
	writeReportFile(t, outRoot, "partition_00001", "Field_20260101T000000Z.yaml", ErrorReport{
		ModelName:   "Field",
		ResumeState: resume.ModelState{RowIndex: 900},
	})

	status, err := Classify(outRoot, "partition_00001", "Table", resume.ModelState{Started: true, RowIndex: 10})
	require.NoError(t, err)
	require.Equal(t, StatusStarted, status)
}

func TestWriteErrorReport_AssignsCorrelationID(t *testing.T) {
	outRoot := t.TempDir()

	path, err := writeErrorReport(outRoot, "partition_00001", ErrorReport{
		ModelName: "Table",
		Reason:    "upsert_failed",
	})
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var report ErrorReport
	require.NoError(t, yaml.Unmarshal(b, &report))
	require.NotEmpty(t, report.CorrelationID)
	require.Equal(t, "upsert_failed", report.Reason)
}

func TestTruncateForReport(t *testing.T) {
	short := "short body"
	require.Equal(t, short, truncateForReport(short))

	long := make([]rune, maxDocumentChars+50)
	for i := range long {
		long[i] = 'x'
	}
	out := truncateForReport(string(long))
	require.Len(t, []rune(out), maxDocumentChars)
}
