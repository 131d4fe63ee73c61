package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/chenBenjamin97/pose-action/pkg/api"
	"github.com/chenBenjamin97/pose-action/pkg/classifier"
	"github.com/chenBenjamin97/pose-action/pkg/config"
	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/notify"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/recording"
	"github.com/chenBenjamin97/pose-action/pkg/store"
	"github.com/chenBenjamin97/pose-action/pkg/video"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not load configuration")
	}

	log.NewLogger(log.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	//first - create project's data directories
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not create data directories")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub(notify.HubOptions{AllowedOrigins: cfg.HTTP.AllowedOrigins})
	defer hub.Close()

	observers := pose.Observers{notify.LogObserver{}, hub}

	var journal *store.Store
	if cfg.Store.Path != "" {
		if journal, err = store.Open(cfg.Store.Path); err != nil {
			log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not open action journal")
		}
		defer journal.Close()
	}

	if cfg.Redis.Addr != "" {
		publisher, err := notify.NewRedisPublisher(notify.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			//detections still reach the log, websocket and journal
			log.Error(log.Fields{"error": err.Error()}, "Redis unavailable, publishing disabled")
		} else {
			defer publisher.Close()
			observers = append(observers, publisher)
		}
	}

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

	//frames posted to the api always carry keypoints; captured frames go through the pose model
	var frameDetector pose.Detector
	if cfg.Source.Kind != "api" {
		openPose, err := video.NewOpenPoseDetector(video.DetectorConfig{
			Model:         cfg.Detector.Model,
			MinConfidence: cfg.Detector.MinConfidence,
			InputWidth:    cfg.Detector.InputWidth,
			InputHeight:   cfg.Detector.InputHeight,
		})
		if err != nil {
			log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not load pose model")
		}
		defer openPose.Close()
		frameDetector = openPose
	}
	detector := pose.Passthrough(frameDetector)

	if cfg.Source.Record {
		rec, err := recording.NewRecorder(cfg.Directory.Recordings, "")
		if err != nil {
			log.Fatal(log.Fields{"error": err.Error()}, "Error: Could not start recording")
		}
		defer rec.Close()
		detector = recording.Detector(detector, rec)
	}

	sessionID := uuid.NewString()
	if journal != nil {
		observers = append(observers, journal.Observer(sessionID))
	}

	pipeline := pose.NewPipeline(detector, cls, observers, pose.Config{
		WindowSize: cfg.Action.WindowSize,
		Debounce: pose.DebounceConfig{
			Label:     cfg.Action.Label,
			Threshold: cfg.Action.Threshold,
			Cooldown:  cfg.Action.Cooldown,
		},
		SessionID: sessionID,
	})

	runner := pose.NewRunner(pipeline, cfg.Source.InboxSize)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	if cfg.Source.Kind != "api" {
		capture := video.NewCapture(video.CaptureConfig{
			Kind:   cfg.Source.Kind,
			Device: cfg.Source.Device,
			Path:   cfg.Source.Path,
			MaxFPS: cfg.Source.MaxFPS,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := capture.Run(ctx, runner); err != nil {
				log.Error(log.Fields{"error": err.Error()}, "capture stopped")
			}
		}()
	}

	var journalDeps api.Journal
	if journal != nil {
		journalDeps = journal
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTP.Port,
		Handler: api.SetRouter(api.Deps{
			Pipeline:      pipeline,
			Runner:        runner,
			Journal:       journalDeps,
			Hub:           hub,
			RecordingsDir: cfg.Directory.Recordings,
		}),
	}

	go func() {
		log.Info(log.Fields{"port": cfg.HTTP.Port, "session_id": pipeline.SessionID(), "source": cfg.Source.Kind}, "Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(log.Fields{"error": err.Error()}, "Error: http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(nil, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "Error: http server shutdown")
	}
	hub.Close()

	wg.Wait()
	log.Info(log.Fields{"pipeline": pipeline.Stats(), "runner": runner.Stats()}, "Bye")
}
