package classifier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

//SubprocessConfig describes how to start the external sequence model
type SubprocessConfig struct {
	Python     string //interpreter, "python3" when empty
	Script     string
	Model      string
	WindowSize int
}

//request is one line written to the model's standard input
type request struct {
	Shape [3]int    `json:"shape"`
	Data  []float32 `json:"data"`
}

//response is one line read from the model's standard output
type response struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
	Error         string             `json:"error,omitempty"`
}

//Subprocess runs a long lived model process and exchanges one JSON line per classification over its
//standard input and output. Calls are serialized. A process that exits or falls out of step is replaced
//on the next call, only Close is final.
type Subprocess struct {
	mu       sync.Mutex
	ctx      context.Context
	cfg      SubprocessConfig
	proc     *modelProcess
	restarts int
	closed   bool
}

//modelProcess is one run of the model. Its stdout is read line by line into lines, which is closed
//once the process closes its end of the pipe.
type modelProcess struct {
	ctx     context.Context
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan []byte
	readErr error //set before lines is closed
	quit    chan struct{}
	exited  chan struct{}
	killed  atomic.Bool
}

//StartSubprocess starts the model process. The process is killed when ctx is done or Close is called.
func StartSubprocess(ctx context.Context, cfg SubprocessConfig) (*Subprocess, error) {
	if cfg.Script == "" {
		return nil, errors.New("StartSubprocess: missing script path")
	}
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = utils.WindowSize
	}

	s := &Subprocess{ctx: ctx, cfg: cfg}

	proc, err := s.start()
	if err != nil {
		return nil, fmt.Errorf("StartSubprocess: %w", err)
	}
	s.proc = proc
	return s, nil
}

func (s *Subprocess) start() (*modelProcess, error) {
	args := []string{s.cfg.Script, "--timestamps", strconv.Itoa(s.cfg.WindowSize), "--keypoints", strconv.Itoa(utils.KeypointsNum)}
	if s.cfg.Model != "" {
		args = append(args, "--model", s.cfg.Model)
	}
	cmd := exec.CommandContext(s.ctx, s.cfg.Python, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("could not get standard input: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("could not get standard output: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("could not get standard error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start '%s': %w", s.cfg.Script, err)
	}

	p := &modelProcess{
		ctx:    s.ctx,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte, 16),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go p.readStdout(stdout, stdoutDone)
	go p.logStderr(stderr, stderrDone)
	go p.wait(stdoutDone, stderrDone)

	log.Info(log.Fields{"script": s.cfg.Script, "model": s.cfg.Model, "pid": cmd.Process.Pid}, "[classifier.Subprocess] model process started")
	return p, nil
}

func (p *modelProcess) readStdout(r io.Reader, done chan<- struct{}) {
	defer close(done)
	defer close(p.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case p.lines <- line:
		case <-p.quit:
			io.Copy(io.Discard, r)
			return
		}
	}
	p.readErr = scanner.Err()
	if p.readErr != nil {
		//the pipe must still be drained before Wait
		io.Copy(io.Discard, r)
	}
}

func (p *modelProcess) logStderr(r io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "ERROR") || strings.Contains(line, "Traceback"):
			log.Error(log.Fields{"line": line}, "[classifier.Subprocess] model stderr")
		case strings.Contains(line, "WARN"):
			log.Warn(log.Fields{"line": line}, "[classifier.Subprocess] model stderr")
		default:
			log.Debug(log.Fields{"line": line}, "[classifier.Subprocess] model stderr")
		}
	}
	io.Copy(io.Discard, r)
}

//wait reaps the process once both output pipes are drained, Wait closes them
func (p *modelProcess) wait(stdoutDone, stderrDone <-chan struct{}) {
	<-stdoutDone
	<-stderrDone
	err := p.cmd.Wait()
	close(p.exited)

	if !p.killed.Load() && p.ctx.Err() == nil {
		fields := log.Fields{"pid": p.cmd.Process.Pid}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.Error(fields, "[classifier.Subprocess] model process exited")
	}
}

func (p *modelProcess) kill() {
	if p.killed.Swap(true) {
		return
	}
	close(p.quit)
	p.stdin.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}

func (p *modelProcess) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return !p.killed.Load()
	}
}

//processLocked returns a running model process, starting a new one when the last one is gone
func (s *Subprocess) processLocked() (*modelProcess, error) {
	if s.proc != nil && s.proc.alive() {
		return s.proc, nil
	}
	if s.proc != nil {
		s.proc.kill()
		s.proc = nil
	}

	proc, err := s.start()
	if err != nil {
		return nil, fmt.Errorf("Subprocess.Classify: restart: %w", err)
	}
	s.proc = proc
	s.restarts++
	log.Warn(log.Fields{"restarts": s.restarts}, "[classifier.Subprocess] model process restarted")
	return proc, nil
}

//discardLocked kills the current process, the next call starts a new one
func (s *Subprocess) discardLocked() {
	if s.proc != nil {
		s.proc.kill()
		s.proc = nil
	}
}

func (s *Subprocess) Classify(ctx context.Context, tensor *pose.Tensor) (pose.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pose.Prediction{}, pose.ErrClassifierClosed
	}

	line, err := json.Marshal(request{Shape: tensor.Shape(), Data: tensor.Data})
	if err != nil {
		return pose.Prediction{}, fmt.Errorf("Subprocess.Classify: encode: %w", err)
	}

	proc, err := s.processLocked()
	if err != nil {
		return pose.Prediction{}, err
	}

	writeC := make(chan error, 1)
	go func() {
		_, err := proc.stdin.Write(append(line, '\n'))
		writeC <- err
	}()

	for {
		select {
		case <-ctx.Done():
			//the request/response stream is out of step now
			s.discardLocked()
			return pose.Prediction{}, ctx.Err()
		case err := <-writeC:
			if err != nil {
				s.discardLocked()
				return pose.Prediction{}, fmt.Errorf("Subprocess.Classify: write: %w", err)
			}
			writeC = nil
		case raw, ok := <-proc.lines:
			if !ok {
				err := proc.readErr
				if err == nil {
					err = io.EOF
				}
				s.discardLocked()
				return pose.Prediction{}, fmt.Errorf("Subprocess.Classify: read: %w", err)
			}

			var resp response
			if err := json.Unmarshal(raw, &resp); err != nil {
				s.discardLocked()
				return pose.Prediction{}, fmt.Errorf("Subprocess.Classify: decode '%s': %w", raw, err)
			}
			if resp.Error != "" {
				return pose.Prediction{}, fmt.Errorf("Subprocess.Classify: model error: %s", resp.Error)
			}
			return pose.Prediction{Label: resp.Label, Probabilities: resp.Probabilities}, nil
		}
	}
}

//Close stops the model process. Later calls to Classify return pose.ErrClassifierClosed.
func (s *Subprocess) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.discardLocked()
	return nil
}
