// Package fasta parses FASTA sequence files.
package fasta

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is a parsed FASTA sequence. Label is the full header line with
// the leading '>' stripped and surrounding whitespace trimmed. Label
// uniqueness is assumed, not enforced.
type Record struct {
	Label string
	Seq   string
}

// Open reads every record from the file at path. "-" reads stdin, and
// gzip input is detected by magic number or a .gz suffix.
func Open(path string) ([]Record, error) {
	rc, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return Read(rc)
}

// Read parses all records from r.
func Read(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	// Allow very long single-line sequences.
	const maxLine = 64 * 1024 * 1024
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		records []Record
		label   string
		seq     bytes.Buffer
		started bool
	)
	flush := func() {
		if !started {
			return
		}
		records = append(records, Record{Label: label, Seq: seq.String()})
		seq.Reset()
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			label = strings.TrimSpace(line[1:])
			started = true
			continue
		}
		if !started {
			return nil, fmt.Errorf("fasta: line %d: sequence data before first header", lineNo)
		}
		seq.WriteString(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("fasta: scan: %w", err)
	}
	flush()
	return records, nil
}

// multiReadCloser closes multiple io.Closers when Close is called.
type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// openReader handles gzip and "-" (stdin) input.
func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// Detect gzip by magic number (1F 8B) or by .gz suffix.
	var sig [2]byte
	n, _ := fh.Read(sig[:])
	_, _ = fh.Seek(0, io.SeekStart)
	if (n == 2 && sig[0] == 0x1f && sig[1] == 0x8b) || strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			_ = fh.Close()
			return nil, err
		}
		return &multiReadCloser{Reader: gr, closers: []io.Closer{gr, fh}}, nil
	}
	return fh, nil
}
