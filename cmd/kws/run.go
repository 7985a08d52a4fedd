package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/microbit-kws-lab/internal/audio"
	"github.com/microbit-kws-lab/internal/board"
	"github.com/microbit-kws-lab/internal/capture"
	"github.com/microbit-kws-lab/internal/classifier"
	"github.com/microbit-kws-lab/internal/config"
	"github.com/microbit-kws-lab/internal/kws"
	"github.com/microbit-kws-lab/internal/logging"
	"github.com/microbit-kws-lab/internal/metrics"
	"github.com/microbit-kws-lab/internal/pipeline"
	"github.com/microbit-kws-lab/internal/recording"
)

func buildClassifier(cfg *config.Config) (classifier.Classifier, error) {
	switch cfg.Classifier.Type {
	case "http":
		return classifier.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout()), nil
	case "replay":
		script, err := classifier.LoadScript(cfg.Classifier.Script)
		if err != nil {
			return nil, err
		}
		return classifier.NewReplayClassifier(script, cfg.Classifier.Loop), nil
	default:
		return nil, fmt.Errorf("unknown classifier type %q", cfg.Classifier.Type)
	}
}

func run(parent context.Context, cfg *config.Config) error {
	logging.Init(cfg.Logging.Level)
	defer func() { _ = logging.Sync() }()

	pair, err := audio.NewBufferPair(cfg.Audio.SliceSize)
	if err != nil {
		logging.FatalExitf("failed to alloc buffers", "err", err, "slice_size", cfg.Audio.SliceSize)
	}

	cls, err := buildClassifier(cfg)
	if err != nil {
		logging.Errorw("failed to set up classifier", "type", cfg.Classifier.Type, "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Infow("shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	m := metrics.New()
	m.ObservePair(pair.Stats)

	var boards board.Multi
	if cfg.Board.LogEvents {
		boards = append(boards, board.NewLogBoard())
	}

	var wg sync.WaitGroup
	var srv *http.Server
	if cfg.HTTP.Enabled {
		hub := board.NewHub()
		boards = append(boards, hub)
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		mux.Handle("/ws", hub)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		srv = &http.Server{Addr: cfg.HTTP.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logging.Infow("http server listening", "addr", cfg.HTTP.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Errorw("http server failed", "err", err)
			}
		}()
	}

	var rec *recording.Recorder
	if cfg.Recording.Enabled {
		rec = recording.New(cfg.Recording.Dir, cfg.Audio.SampleRate)
		wg.Add(1)
		recording.StartCleaner(ctx, &wg, cfg.Recording.Dir, cfg.Recording.Retention(), cfg.Recording.Interval(), cfg.Recording.MaxFiles)
	}

	src := &capture.FileSource{
		Path:       cfg.Capture.Input,
		Format:     cfg.Capture.Format,
		SampleRate: cfg.Audio.SampleRate,
		ChunkSize:  cfg.Capture.ChunkSize,
		Realtime:   cfg.Capture.Realtime,
		Loop:       cfg.Capture.Loop,
	}
	// not waited on: a blocking stdin read must not hold up shutdown.
	// A failure is sent before cancel so it is visible once Run returns.
	captureErr := make(chan error, 1)
	go func() {
		if _, err := src.Run(ctx, pair.Write); err != nil {
			logging.Errorw("capture failed", "err", err)
			captureErr <- err
			cancel()
			return
		}
		// input is finished: let the loop consume the last window, then stop
		t := time.NewTicker(cfg.Loop.Tick())
		defer t.Stop()
		for pair.Pending() {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
		cancel()
	}()

	runner := &pipeline.Runner{
		Pair:          pair,
		Classifier:    cls,
		Detector:      kws.NewDetector(cfg.Keywords.Primary, cfg.Keywords.Secondary),
		Board:         boards,
		Pins:          board.Pins{cfg.Board.PrimaryPin, cfg.Board.SecondaryPin},
		Metrics:       m,
		Recorder:      rec,
		Tick:          cfg.Loop.Tick(),
		WarmupWindows: cfg.Audio.SlicesPerModelWindow,
		SignalScale:   cfg.Audio.SignalScale,
	}
	runErr := runner.Run(ctx)
	cancel()
	wg.Wait()

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		done()
	}

	st := pair.Stats()
	logging.Infow("stopped", "flips", st.Flips, "overwritten", st.Overwritten, "dropped", st.Dropped)
	select {
	case err := <-captureErr:
		return fmt.Errorf("capture: %w", err)
	default:
	}
	switch {
	case errors.Is(runErr, classifier.ErrScriptExhausted):
		logging.Infow("replay script finished")
		return nil
	case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		return nil
	}
	if runErr != nil {
		logging.Errorw("inference loop failed", "code", classifier.Code(runErr), "err", runErr)
		return runErr
	}
	return nil
}
