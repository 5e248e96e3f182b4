package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelcascade.ai/internal/sim/neighbor"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Files lists the log files written so far, oldest first.
func (w *JSONLZstdWriter) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(w.baseDir, w.prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadJSONL decodes every line of a closed log file into a new T.
// Appended sessions are separate zstd frames, which the decoder reads
// back to back.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []T
	jd := json.NewDecoder(dec)
	for {
		var v T
		if err := jd.Decode(&v); err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, v)
	}
}

// DrainEntry is one logged drain.
type DrainEntry struct {
	Time     string  `json:"time"`
	Region   string  `json:"region"`
	Tick     int64   `json:"tick"`
	Origin   [3]int  `json:"origin"`
	Admitted int     `json:"admitted"`
	Dropped  int     `json:"dropped,omitempty"`
	Failed   int     `json:"failed,omitempty"`
	First    *[3]int `json:"first_dropped,omitempty"`
}

// DrainLogger writes drains that hit the chain cutoff or recovered a failed
// update. Clean drains are not logged.
type DrainLogger struct{ w *JSONLZstdWriter }

func NewDrainLogger(dir string) *DrainLogger {
	return &DrainLogger{w: NewJSONLZstdWriter(dir, "drains")}
}

func (l *DrainLogger) WriteDrain(e DrainEntry) error { return l.w.Write(e) }

func (l *DrainLogger) Files() ([]string, error) { return l.w.Files() }

func (l *DrainLogger) Close() error { return l.w.Close() }

// Reporter adapts the logger to a region's updater. Write errors are
// passed to onErr when it is non-nil.
func (l *DrainLogger) Reporter(regionID string, tick func() int64, onErr func(error)) neighbor.Reporter {
	return neighbor.ReporterFunc(func(r neighbor.DrainReport) {
		if r.Dropped == 0 && r.Failed == 0 {
			return
		}
		e := DrainEntry{
			Time:     l.w.now().UTC().Format(time.RFC3339Nano),
			Region:   regionID,
			Tick:     tick(),
			Origin:   r.Origin.Array(),
			Admitted: r.Admitted,
			Dropped:  r.Dropped,
			Failed:   r.Failed,
		}
		if r.FirstDropped != nil {
			a := r.FirstDropped.Array()
			e.First = &a
		}
		if err := l.WriteDrain(e); err != nil && onErr != nil {
			onErr(err)
		}
	})
}
