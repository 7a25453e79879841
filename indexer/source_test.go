package indexer

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSource_CSVOffsetIsByteAccurate(t *testing.T) {
	path := writeSourceFile(t, "rows.csv", "id,title\n1,one\n2,two\n3,three\n")

	src, err := openSource(path, FormatCSV)
	require.NoError(t, err)
	defer src.Close()
	require.Equal(t, []string{"id", "title"}, src.Fieldnames())

	_, err = src.ReadRow()
	require.NoError(t, err)
	_, err = src.ReadRow()
	require.NoError(t, err)
	offset := src.Offset()

	// Reopening at the recorded offset yields exactly the next row.
	resumed, err := resumeAt(path, FormatCSV, offset, src.Fieldnames())
	require.NoError(t, err)
	defer resumed.Close()
	row, err := resumed.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "3", row["id"])
	require.Equal(t, "three", row["title"])
	_, err = resumed.ReadRow()
	require.Equal(t, io.EOF, err)
}

func TestSource_PrevOffsetPointsAtLastReturnedRow(t *testing.T) {
	path := writeSourceFile(t, "rows.csv", "id,title\n1,one\n2,two\n")

	src, err := openSource(path, FormatCSV)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.ReadRow()
	require.NoError(t, err)
	_, err = src.ReadRow()
	require.NoError(t, err)

	reread, err := resumeAt(path, FormatCSV, src.PrevOffset(), src.Fieldnames())
	require.NoError(t, err)
	defer reread.Close()
	row, err := reread.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "2", row["id"], "PrevOffset must replay the row just returned")
}

func TestSource_SkipRowsMatchesByteResume(t *testing.T) {
	path := writeSourceFile(t, "rows.csv", "id,title\n1,one\n2,two\n3,three\n4,four\n")

	byOffset, err := openSource(path, FormatCSV)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = byOffset.ReadRow()
		require.NoError(t, err)
	}
	resumed, err := resumeAt(path, FormatCSV, byOffset.Offset(), byOffset.Fieldnames())
	require.NoError(t, err)
	defer resumed.Close()
	byOffset.Close()

	skipped, err := skipRows(path, FormatCSV, 2)
	require.NoError(t, err)
	defer skipped.Close()

	for {
		a, errA := resumed.ReadRow()
		b, errB := skipped.ReadRow()
		require.Equal(t, errA, errB)
		if errA == io.EOF {
			break
		}
		require.Equal(t, a, b)
	}
}

func TestSource_MissingTrailingNewline(t *testing.T) {
	path := writeSourceFile(t, "rows.csv", "id,title\n1,one\n2,two")

	src, err := openSource(path, FormatCSV)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.ReadRow()
	require.NoError(t, err)
	row, err := src.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "two", row["title"])

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	require.Equal(t, info.Size(), src.Offset())

	_, err = src.ReadRow()
	require.Equal(t, io.EOF, err)
}

func TestSource_BlankLinesAreSkipped(t *testing.T) {
	path := writeSourceFile(t, "rows.csv", "id,title\n1,one\n\n\n2,two\n")

	src, err := openSource(path, FormatCSV)
	require.NoError(t, err)
	defer src.Close()

	row, err := src.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "1", row["id"])
	row, err = src.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "2", row["id"])
	_, err = src.ReadRow()
	require.Equal(t, io.EOF, err)
}

func TestSource_ShortCSVRowsPadMissingFields(t *testing.T) {
	path := writeSourceFile(t, "rows.csv", "id,title,body\n1,one\n")

	src, err := openSource(path, FormatCSV)
	require.NoError(t, err)
	defer src.Close()

	row, err := src.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "one", row["title"])
	require.Equal(t, "", row["body"])
}

func TestSource_JSONLStringifiesValues(t *testing.T) {
	path := writeSourceFile(t, "rows.jsonl",
		`{"id":"a","n":3,"nested":{"x":1},"none":null}`+"\n"+`{"id":"b","n":4.5}`+"\n")

	src, err := openSource(path, FormatJSONL)
	require.NoError(t, err)
	defer src.Close()
	require.Nil(t, src.Fieldnames())

	row, err := src.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "a", row["id"])
	require.Equal(t, "3", row["n"])
	require.JSONEq(t, `{"x":1}`, row["nested"])
	require.Equal(t, "", row["none"])

	row, err = src.ReadRow()
	require.NoError(t, err)
	require.Equal(t, "b", row["id"])

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	require.Equal(t, info.Size(), src.Offset())
}

func TestStatSignature(t *testing.T) {
	path := writeSourceFile(t, "rows.csv", "id\n1\n")

	sig1, err := StatSignature(path)
	require.NoError(t, err)
	require.Equal(t, int64(5), sig1.Size)

	require.NoError(t, os.WriteFile(path, []byte("id\n1\n2\n"), 0o644))
	sig2, err := StatSignature(path)
	require.NoError(t, err)
	require.NotEqual(t, sig1, sig2)

	_, err = StatSignature(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
