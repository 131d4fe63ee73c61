package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

var ErrEmptyFrame = errors.New("video: empty frame")

type DetectorConfig struct {
	Model         string  //tensorflow graph, e.g. ./openpose/graph_opt.pb
	MinConfidence float64 //heatmap peaks at or below this are treated as missing joints
	InputWidth    int
	InputHeight   int
}

//OpenPoseDetector finds the joints of one body per frame with an OpenPose heatmap network.
//Frame payloads must be *gocv.Mat or gocv.Mat.
type OpenPoseDetector struct {
	mu  sync.Mutex //gocv.Net is not safe for concurrent Forward calls
	net gocv.Net
	cfg DetectorConfig
}

//NewOpenPoseDetector loads the network, it is reused for every frame
func NewOpenPoseDetector(cfg DetectorConfig) (*OpenPoseDetector, error) {
	if cfg.InputWidth <= 0 {
		cfg.InputWidth = 368
	}
	if cfg.InputHeight <= 0 {
		cfg.InputHeight = 368
	}

	net := gocv.ReadNetFromTensorflow(cfg.Model)
	if net.Empty() {
		return nil, fmt.Errorf("NewOpenPoseDetector: could not load model '%s'", cfg.Model)
	}

	log.Info(log.Fields{"model": cfg.Model, "input": fmt.Sprintf("%dx%d", cfg.InputWidth, cfg.InputHeight)}, "[video.NewOpenPoseDetector] pose model loaded")
	return &OpenPoseDetector{net: net, cfg: cfg}, nil
}

func (d *OpenPoseDetector) Detect(ctx context.Context, frame pose.Frame) ([]pose.KeypointFrame, error) {
	var mat gocv.Mat
	switch m := frame.Payload.(type) {
	case *gocv.Mat:
		mat = *m
	case gocv.Mat:
		mat = m
	default:
		return nil, fmt.Errorf("%w: %T", pose.ErrUnsupportedPayload, frame.Payload)
	}
	if mat.Empty() {
		return nil, ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(d.cfg.InputWidth, d.cfg.InputHeight), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	s := prob.Size()
	if len(s) < 4 {
		return nil, fmt.Errorf("Detect: unexpected network output shape %v", s)
	}
	nparts, h, w := s[1], s[2], s[3]
	if nparts < utils.KeypointsNum {
		return nil, fmt.Errorf("Detect: network returned %d heatmaps, need %d", nparts, utils.KeypointsNum)
	}

	body := pose.NewKeypointFrame()
	for i, joint := range openPoseParts {
		heatmap, err := prob.FromPtr(h, w, gocv.MatTypeCV32F, 0, i)
		if err != nil {
			return nil, fmt.Errorf("Detect: heatmap %d: %w", i, err)
		}
		_, conf, _, pt := gocv.MinMaxLoc(heatmap)
		heatmap.Close()

		if kp, ok := heatmapKeypoint(pt.X, pt.Y, w, h, float64(conf), d.cfg.MinConfidence); ok {
			body.Keypoints[joint] = kp
		}
	}

	if len(body.Keypoints) == 0 {
		return nil, nil
	}
	return []pose.KeypointFrame{body}, nil
}

func (d *OpenPoseDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
