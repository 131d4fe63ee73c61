package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
)

//maxReadFailures is how many consecutive empty reads a camera may return before capture gives up
const maxReadFailures = 30

type CaptureConfig struct {
	Kind   string //"camera" or "file"
	Device int
	Path   string
	MaxFPS float64 //0 means the file's own frame rate, or no limit for a camera
}

//Capture reads frames from a camera or a video file and submits them downstream.
type Capture struct {
	cfg CaptureConfig
}

func NewCapture(cfg CaptureConfig) *Capture {
	return &Capture{cfg: cfg}
}

func (c *Capture) open() (*gocv.VideoCapture, error) {
	switch c.cfg.Kind {
	case "camera":
		return gocv.VideoCaptureDevice(c.cfg.Device)
	case "file":
		return gocv.VideoCaptureFile(c.cfg.Path)
	default:
		return nil, fmt.Errorf("Capture: unknown source kind '%s'", c.cfg.Kind)
	}
}

//Run reads frames until ctx is done, the file ends, or the camera stops delivering. Each submitted frame
//carries a *gocv.Mat payload which is closed by the frame's Release.
func (c *Capture) Run(ctx context.Context, sink Submitter) error {
	vc, err := c.open()
	if err != nil {
		return fmt.Errorf("Capture.Run: could not open source, got '%w'", err)
	}
	defer vc.Close()

	fps := c.cfg.MaxFPS
	if fps <= 0 && c.cfg.Kind == "file" {
		fps = vc.Get(gocv.VideoCaptureFPS)
	}

	var limiter *rate.Limiter
	if fps > 0 {
		limiter = rate.NewLimiter(rate.Limit(fps), 1)
	}

	log.Info(log.Fields{"kind": c.cfg.Kind, "device": c.cfg.Device, "path": c.cfg.Path, "fps": fps}, "[video.Capture] capture started")

	var seq, submitted, dropped uint64
	failures := 0

	defer func() {
		log.Info(log.Fields{"frames": seq, "submitted": submitted, "dropped": dropped}, "[video.Capture] capture stopped")
	}()

	for {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		} else if ctx.Err() != nil {
			return nil
		}

		mat := gocv.NewMat()
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			mat.Close()

			if c.cfg.Kind == "file" {
				return nil //end of video
			}
			failures++
			if failures >= maxReadFailures {
				return errors.New("Capture.Run: camera stopped delivering frames")
			}
			continue
		}
		failures = 0
		seq++

		frame := pose.Frame{
			Seq:       seq,
			Timestamp: time.Now(),
			Payload:   &mat,
			Release:   func() { mat.Close() },
		}
		if sink.Submit(frame) {
			submitted++
		} else {
			dropped++
		}
	}
}
