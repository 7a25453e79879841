package indexer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/antflydb/vecindex/resume"
)

// Format names the two prepared-file shapes the sanitiser is contracted
// to produce.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// StatSignature stats path and returns its current source signature.
func StatSignature(path string) (resume.SourceSignature, error) {
	info, err := os.Stat(path)
	if err != nil {
		return resume.SourceSignature{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return resume.SourceSignature{Mtime: info.ModTime().UnixNano(), Size: info.Size()}, nil
}

// source streams one prepared file row by row, tracking the byte offset
// of the first unread byte after the last fully-read row. It reads whole
// lines, so it does not support CSV fields containing literal newlines —
// the seek-then-skip fallback in skipRows covers sources where byte-exact
// resume isn't possible.
type source struct {
	f          *os.File
	r          *bufio.Reader
	format     Format
	fieldnames []string
	offset     int64
	prevOffset int64
	path       string
}

// openSource opens path fresh: for CSV it consumes the header line and
// records fieldnames; for JSONL there is no header.
func openSource(path string, format Format) (*source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	s := &source{f: f, r: bufio.NewReader(f), format: format, path: path}

	if format == FormatCSV {
		line, n, err := s.readLine()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading header of %s: %w", path, err)
		}
		fields, err := parseCSVLine(line)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("parsing header of %s: %w", path, err)
		}
		s.fieldnames = fields
		s.offset = n
	}
	return s, nil
}

// resumeAt reopens path at byte offset and uses fieldnames recovered from
// a prior run's resume state, skipping the header re-read.
func resumeAt(path string, format Format, offset int64, fieldnames []string) (*source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking %s to %d: %w", path, offset, err)
	}
	return &source{f: f, r: bufio.NewReader(f), format: format, path: path, fieldnames: fieldnames, offset: offset, prevOffset: offset}, nil
}

// skipRows is the byte-inexact fallback: reopen from the start
// (re-consuming the CSV header if present), then discard n rows.
func skipRows(path string, format Format, n int) (*source, error) {
	s, err := openSource(path, format)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if _, err := s.ReadRow(); err != nil {
			s.Close()
			return nil, fmt.Errorf("skipping to row %d of %s: %w", n, path, err)
		}
	}
	return s, nil
}

func (s *source) Fieldnames() []string {
	return s.fieldnames
}

// Offset reports the position of the first unread byte after the last
// row returned by ReadRow.
func (s *source) Offset() int64 {
	return s.offset
}

// PrevOffset reports the position at which the last row returned by
// ReadRow begins. A flush that excludes that row must checkpoint this
// offset, not Offset(): the row has been read but not flushed, and a
// checkpoint past it would lose it on resume.
func (s *source) PrevOffset() int64 {
	return s.prevOffset
}

func (s *source) Close() error {
	return s.f.Close()
}

func (s *source) readLine() (string, int64, error) {
	line, err := s.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", 0, err
	}
	if len(line) == 0 && err == io.EOF {
		return "", 0, io.EOF
	}
	consumed := int64(len(line))
	return strings.TrimRight(line, "\r\n"), consumed, nil
}

// ReadRow returns the next record as field-name -> string value. io.EOF
// signals a clean end of stream.
func (s *source) ReadRow() (map[string]string, error) {
	s.prevOffset = s.offset
	line, n, err := s.readLine()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(line) == "" {
		s.offset += n
		return s.ReadRow()
	}

	var record map[string]string
	switch s.format {
	case FormatJSONL:
		record, err = parseJSONLLine(line)
	default:
		record, err = parseCSVRecord(line, s.fieldnames)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing row in %s: %w", s.path, err)
	}

	s.offset += n
	return record, nil
}

func parseCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	return r.Read()
}

func parseCSVRecord(line string, fieldnames []string) (map[string]string, error) {
	values, err := parseCSVLine(line)
	if err != nil {
		return nil, err
	}
	record := make(map[string]string, len(fieldnames))
	for i, name := range fieldnames {
		if i < len(values) {
			record[name] = values[i]
		} else {
			record[name] = ""
		}
	}
	return record, nil
}

func parseJSONLLine(line string) (map[string]string, error) {
	var raw map[string]any
	if err := sonic.Unmarshal([]byte(line), &raw); err != nil {
		return nil, err
	}
	record := make(map[string]string, len(raw))
	for k, v := range raw {
		record[k] = stringifyJSONValue(v)
	}
	return record, nil
}

func stringifyJSONValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := sonic.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
