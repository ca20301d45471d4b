// Package history keeps the append-only log of commands the user issued.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	TimeLayout = "2006-01-02 15:04:05"
	separator  = " - "
)

type Record struct {
	Time time.Time
	Text string
	// Malformed records could not be split; Text holds the raw line.
	Malformed bool
}

func (r Record) String() string {
	if r.Malformed {
		return r.Text
	}
	return r.Time.Format(TimeLayout) + separator + r.Text
}

type Log struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

func (l *Log) Path() string { return l.path }

// Append writes one record. Newlines in raw are flattened so a record is
// always one line.
func (l *Log) Append(raw string) error {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	line := l.now().Format(TimeLayout) + separator + raw + "\n"
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Read returns every record in file order. A missing file is an empty
// history.
func (l *Log) Read() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		out = append(out, parse(line))
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

// Tail returns at most the last n records.
func (l *Log) Tail(n int) ([]Record, error) {
	recs, err := l.Read()
	if len(recs) > n && n >= 0 {
		recs = recs[len(recs)-n:]
	}
	return recs, err
}

func parse(line string) Record {
	ts, text, ok := strings.Cut(line, separator)
	if !ok {
		return Record{Text: line, Malformed: true}
	}
	t, err := time.ParseInLocation(TimeLayout, ts, time.Local)
	if err != nil {
		return Record{Text: line, Malformed: true}
	}
	return Record{Time: t, Text: text}
}
