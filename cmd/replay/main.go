//Command replay runs a keypoint recording through the action pipeline and prints the detected actions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	jsoniter "github.com/json-iterator/go"

	"github.com/chenBenjamin97/pose-action/pkg/classifier"
	"github.com/chenBenjamin97/pose-action/pkg/config"
	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/recording"
	"github.com/chenBenjamin97/pose-action/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//replayClock follows the recording's own timestamps so cooldowns match the recorded motion
type replayClock struct {
	now time.Time
}

func (c *replayClock) Now() time.Time { return c.now }

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ./config.yaml)")
	input := flag.String("i", "", "recording to replay, a path or a file name in directory.recordings")
	fps := flag.Float64("fps", 30, "frame rate assumed for lines without a timestamp")
	journalPath := flag.String("journal", "", "also store detections in this sqlite journal")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not load configuration")
	}
	log.NewLogger(log.Options{Level: cfg.Log.Level})

	path := *input
	if path == "" {
		log.Fatal(nil, "Error: missing -i recording")
	}
	if *fps <= 0 {
		log.Fatal(log.Fields{"fps": *fps}, "Error: -fps must be positive")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = filepath.Join(cfg.Directory.Recordings, path)
	}

	total, err := recording.Count(path)
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error(), "path": path}, "Error: Could not read recording")
	}

	ctx := context.Background()

	cls, closeClassifier, err := classifier.New(ctx, classifier.Options{
		Kind:        cfg.Classifier.Kind,
		Templates:   cfg.Classifier.Templates,
		Temperature: cfg.Classifier.Temperature,
		Python:      cfg.Classifier.Python,
		Script:      cfg.Classifier.Script,
		Model:       cfg.Classifier.Model,
		WindowSize:  cfg.Action.WindowSize,
	})
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not start classifier")
	}
	defer closeClassifier()

	var detected []pose.ActionEvent
	observers := pose.Observers{pose.ObserverFunc(func(ev pose.Event) {
		if ev.Kind == pose.ActionDetected && ev.Action != nil {
			detected = append(detected, *ev.Action)
		}
	})}

	sessionID := "replay-" + filepath.Base(path)
	if *journalPath != "" {
		journal, err := store.Open(*journalPath)
		if err != nil {
			log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not open action journal")
		}
		defer journal.Close()
		observers = append(observers, journal.Observer(sessionID))
	}

	clock := &replayClock{now: time.Unix(0, 0)}
	step := time.Duration(float64(time.Second) / *fps)

	pipeline := pose.NewPipeline(pose.Passthrough(nil), cls, observers, pose.Config{
		WindowSize: cfg.Action.WindowSize,
		Debounce: pose.DebounceConfig{
			Label:     cfg.Action.Label,
			Threshold: cfg.Action.Threshold,
			Cooldown:  cfg.Action.Cooldown,
			Clock:     clock,
		},
		SessionID: sessionID,
	})

	r, err := recording.Open(path)
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not open recording")
	}
	defer r.Close()

	bar := pb.StartNew(total)
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			bar.Finish()
			log.Fatal(log.Fields{"error": err.Error()}, "Error: Bad recording")
		}

		if line.TimestampNs != 0 {
			clock.now = time.Unix(0, line.TimestampNs)
		} else {
			clock.now = clock.now.Add(step)
		}

		pipeline.HandleFrame(ctx, line.Frame())
		bar.Increment()
	}
	bar.Finish()

	for _, action := range detected {
		b, _ := json.Marshal(action)
		fmt.Println(string(b))
	}

	stats := pipeline.Stats()
	log.Info(log.Fields{
		"frames":   stats.Frames,
		"passes":   stats.ClassificationPasses,
		"skipped":  stats.SkippedKeypointFrames,
		"detected": len(detected),
	}, "replay finished")
}
