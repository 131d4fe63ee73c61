//Package recording writes detected keypoints to JSON-lines files and reads them back for replay.
package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/ulid/v2"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//FileExtension is the extension of keypoint recordings.
const FileExtension = ".jsonl"

const maxLineSize = 4 * 1024 * 1024

var ErrClosed = errors.New("recording: recorder is closed")

//Line is one recorded frame: the bodies the detector found in it, possibly none.
type Line struct {
	Seq         uint64               `json:"seq"`
	TimestampNs int64                `json:"ts_ns,omitempty"`
	Bodies      []pose.KeypointFrame `json:"bodies"`
}

//Frame turns the line back into a pipeline frame with pre-detected bodies.
func (l Line) Frame() pose.Frame {
	ts := time.Time{}
	if l.TimestampNs != 0 {
		ts = time.Unix(0, l.TimestampNs)
	}
	bodies := l.Bodies
	if bodies == nil {
		bodies = []pose.KeypointFrame{}
	}
	return pose.Frame{Seq: l.Seq, Timestamp: ts, Payload: bodies}
}

//Recorder appends Lines to a file.
type Recorder struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	w      *bufio.Writer
	frames uint64
	closed bool
}

//NewRecorder creates dir if needed and opens a new recording in it. An empty name gets a unique,
//time ordered one.
func NewRecorder(dir, name string) (*Recorder, error) {
	if name == "" {
		name = "session-" + ulid.Make().String()
	}
	if filepath.Ext(name) != FileExtension {
		name += FileExtension
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("recording: create directory: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("recording: create file: %w", err)
	}

	log.Info(log.Fields{"path": path}, "[recording.NewRecorder] recording keypoints")
	return &Recorder{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (r *Recorder) Record(line Line) error {
	b, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("recording: encode frame %d: %w", line.Seq, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, err := r.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("recording: write frame %d: %w", line.Seq, err)
	}
	r.frames++
	return nil
}

func (r *Recorder) Path() string { return r.path }

func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

//Close flushes buffered lines and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	log.Info(log.Fields{"path": r.path, "frames": r.frames}, "[recording.Close] recording finished")

	if flushErr != nil {
		return fmt.Errorf("recording: flush: %w", flushErr)
	}
	return closeErr
}

//Detector records what next detects in every frame it handles successfully, then passes the result on.
func Detector(next pose.Detector, rec *Recorder) pose.Detector {
	return pose.DetectorFunc(func(ctx context.Context, frame pose.Frame) ([]pose.KeypointFrame, error) {
		bodies, err := next.Detect(ctx, frame)
		if err != nil {
			return nil, err
		}

		line := Line{Seq: frame.Seq, Bodies: bodies}
		if !frame.Timestamp.IsZero() {
			line.TimestampNs = frame.Timestamp.UnixNano()
		}
		if err := rec.Record(line); err != nil {
			log.Warn(log.Fields{"error": err.Error(), "seq": frame.Seq}, "[recording.Detector] frame not recorded")
		}
		return bodies, nil
	})
}

//Reader reads a recording line by line.
type Reader struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recording: open: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{f: f, scanner: scanner}, nil
}

//Next returns the next line, or io.EOF after the last one. Blank lines are skipped.
func (r *Reader) Next() (Line, error) {
	for r.scanner.Scan() {
		r.line++
		b := r.scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var l Line
		if err := json.Unmarshal(b, &l); err != nil {
			return Line{}, fmt.Errorf("recording: line %d: %w", r.line, err)
		}
		return l, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Line{}, fmt.Errorf("recording: read: %w", err)
	}
	return Line{}, io.EOF
}

func (r *Reader) Close() error {
	return r.f.Close()
}

//Count returns the number of non-blank lines in the recording at path.
func Count(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("recording: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	n := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("recording: read: %w", err)
	}
	return n, nil
}
