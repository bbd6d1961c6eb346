// Package replay feeds recorded range scans through the control pipeline
// and captures the commands it produces.
//
// A scan log is a JSON-lines file, one scan per line:
//
//	{"t": 0.05, "speed": 12.5, "points": [[x, y, z], ...]}
//
// t is seconds since the start of the recording, speed is the vehicle's
// forward speed in m/s and points are in the vehicle frame (+X forward,
// +Y left) in scan order.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/monitoring"
)

// ErrEndOfLog is returned by NextScan once every scan has been read. It
// wraps io.EOF.
var ErrEndOfLog = fmt.Errorf("replay: end of scan log: %w", io.EOF)

// maxLineBytes bounds one scan line; a 360° scan with a few thousand
// returns fits comfortably.
const maxLineBytes = 16 << 20

// Scan is one decoded scan log line.
type Scan struct {
	T      float64      `json:"t"`
	Speed  float64      `json:"speed"`
	Points [][3]float64 `json:"points"`
}

// ScanPoints converts the raw triples to scan points.
func (s Scan) ScanPoints() []l4perception.ScanPoint {
	out := make([]l4perception.ScanPoint, len(s.Points))
	for i, p := range s.Points {
		out[i] = l4perception.ScanPoint{X: p[0], Y: p[1], Z: p[2]}
	}
	return out
}

// ScanLog reads scans one line at a time. It reports the speed recorded
// alongside the most recently read scan. Safe for concurrent use.
type ScanLog struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	current Scan
	done    bool
}

// NewScanLog reads scans from r.
func NewScanLog(r io.Reader) *ScanLog {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &ScanLog{scanner: sc}
}

// OpenScanLog opens the scan log at path. Close releases the file.
func OpenScanLog(path string) (*ScanLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scan log: %w", err)
	}
	l := NewScanLog(f)
	l.closer = f
	monitoring.Logf("[replay] reading scans from %s", path)
	return l, nil
}

// NextScan returns the next scan's points. Blank lines are skipped; a
// malformed line is an error naming its line number.
func (l *ScanLog) NextScan(ctx context.Context) ([]l4perception.ScanPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return nil, ErrEndOfLog
	}
	for l.scanner.Scan() {
		l.line++
		raw := l.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s Scan
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("scan log line %d: %w", l.line, err)
		}
		l.current = s
		return s.ScanPoints(), nil
	}
	if err := l.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log line %d: %w", l.line+1, err)
	}
	l.done = true
	monitoring.Logf("[replay] end of scan log after %d lines", l.line)
	return nil, ErrEndOfLog
}

// Speed returns the speed recorded with the last scan read, or 0 before
// the first scan.
func (l *ScanLog) Speed(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Speed, nil
}

// Current returns the last scan read.
func (l *ScanLog) Current() Scan {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Close closes the underlying file when the log was opened by path.
func (l *ScanLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WriteScan appends s to w as one scan log line.
func WriteScan(w io.Writer, s Scan) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write scan: %w", err)
	}
	return nil
}
