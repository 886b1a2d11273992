// Package corpus reads line-delimited text corpora and reads and writes
// golden token-ID files.
//
// A golden file has one line per input line, formatted as
// "[id, id, id]" with trailing padding removed. This is the layout the
// reference tooling records, so outputs can be diffed directly.
package corpus

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/mmap"
)

// ReadLines memory-maps the file at path and returns its lines without line
// terminators. A trailing newline does not produce an extra empty line.
func ReadLines(path string) ([]string, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap corpus %q: %w", path, err)
	}

	defer func() { _ = r.Close() }()

	if r.Len() == 0 {
		return []string{}, nil
	}

	data := make([]byte, r.Len())
	if _, err := r.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read corpus %q: %w", path, err)
	}

	return SplitLines(data), nil
}

// SplitLines splits data on "\n", dropping a trailing "\r" from each line.
// A final terminator ends the last line rather than starting a new one, so
// "\n" is one empty line and "" is none.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return []string{}
	}

	raw := bytes.Split(data, []byte("\n"))
	if len(raw[len(raw)-1]) == 0 {
		raw = raw[:len(raw)-1]
	}

	lines := make([]string, len(raw))

	for i, l := range raw {
		lines[i] = string(bytes.TrimSuffix(l, []byte("\r")))
	}

	return lines
}

// TrimPadding returns ids up to and including the last non-zero element.
// It is post-processing for buffers returned by tokenizer.Model.TextToIDs
// and is not applied by the tokenizer itself. A token ID that is genuinely 0
// at the end of a sequence is indistinguishable from padding.
func TrimPadding(ids []int32) []int32 {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] != 0 {
			return ids[:i+1]
		}
	}

	return ids[:0]
}

// FormatIDs renders ids as "[a, b, c]".
func FormatIDs(ids []int32) string {
	var sb strings.Builder

	sb.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(int64(id), 10))
	}
	sb.WriteByte(']')

	return sb.String()
}

// ParseIDs parses a line produced by FormatIDs.
func ParseIDs(line string) ([]int32, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return nil, fmt.Errorf("malformed id line %q: want [..]", line)
	}

	body := strings.TrimSpace(line[1 : len(line)-1])
	if body == "" {
		return []int32{}, nil
	}

	parts := strings.Split(body, ",")
	ids := make([]int32, len(parts))

	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed id %q in line %q: %w", p, line, err)
		}

		ids[i] = int32(v)
	}

	return ids, nil
}

// WriteGolden writes one FormatIDs line per result, trimming padding first.
func WriteGolden(w io.Writer, results [][]int32) error {
	bw := bufio.NewWriter(w)

	for _, ids := range results {
		if _, err := bw.WriteString(FormatIDs(TrimPadding(ids))); err != nil {
			return err
		}

		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ReadGolden parses a golden file.
func ReadGolden(path string) ([][]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open golden file: %w", err)
	}

	defer func() { _ = f.Close() }()

	var out [][]int32

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		ids, err := ParseIDs(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("golden line %d: %w", len(out)+1, err)
		}

		out = append(out, ids)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan golden file: %w", err)
	}

	return out, nil
}

// Mismatch describes one golden line that differs.
type Mismatch struct {
	Line int // 1-based
	Want []int32
	Got  []int32
}

func (m Mismatch) String() string {
	return fmt.Sprintf("line %d: want %s, got %s", m.Line, FormatIDs(m.Want), FormatIDs(m.Got))
}

// Compare checks results against want after trimming padding from each
// result. A length difference is reported as an error.
func Compare(want, results [][]int32) ([]Mismatch, error) {
	if len(want) != len(results) {
		return nil, fmt.Errorf("golden has %d lines, got %d results", len(want), len(results))
	}

	var mismatches []Mismatch

	for i := range want {
		got := TrimPadding(results[i])
		if !equalIDs(want[i], got) {
			mismatches = append(mismatches, Mismatch{Line: i + 1, Want: want[i], Got: got})
		}
	}

	return mismatches, nil
}

func equalIDs(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
