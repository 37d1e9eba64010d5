package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/audio/portaudio"
	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/melody"
	"github.com/RyanBlaney/sonido-vocal/observe"
	"github.com/RyanBlaney/sonido-vocal/publish"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/session"
	"github.com/RyanBlaney/sonido-vocal/store/sqlite"
	"github.com/RyanBlaney/sonido-vocal/transcode"
)

// errQuit ends the live command from the console.
var errQuit = errors.New("quit")

const consoleHelp = "commands: s start, x stop, c cancel, d done, a toggle alignment, q quit"

func runLive(ctx context.Context, e *env, args []string) error {
	fs, configPath := newFlagSet("live", e)
	exercisePath := fs.String("exercise", "", "exercise YAML file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *exercisePath == "" {
		fs.Usage()
		return errors.New("-exercise is required")
	}
	if err := e.setup(*configPath); err != nil {
		return err
	}
	cfg, logger := e.cfg, e.logger

	ex, err := loadLiveExercise(ctx, e, *exercisePath)
	if err != nil {
		return err
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return fmt.Errorf("metrics provider: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("Metrics shutdown failed", logging.Fields{"error": err.Error()})
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	eng, err := portaudio.Open(portaudio.Config{
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
	}, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	aligner, err := alignment.New(cfg.Alignment, alignment.WithLogger(logger), alignment.WithMetrics(metrics))
	if err != nil {
		return err
	}
	scorer, err := scoring.New(cfg.Scoring)
	if err != nil {
		return err
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithPitchConfig(cfg.Pitch),
		session.WithTailConfig(cfg.Tail),
		session.WithProcessor(session.NewProcessor(aligner, scorer)),
	}
	if cfg.Store.Path != "" {
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, session.WithSink(db))
	}

	ctrl, err := session.New(cfg.Session, eng.Capture(), eng, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.FeedPath, publish.NewHub(ctrl,
		publish.WithLogger(logger),
		publish.WithMetrics(metrics),
		publish.WithControls(ctrl),
	))
	mux.Handle(cfg.Server.MetricsPath, promhttp.Handler())
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Serving state feed", logging.Fields{
			"addr":    cfg.Server.Addr,
			"feed":    cfg.Server.FeedPath,
			"metrics": cfg.Server.MetricsPath,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		states, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()
		printStates(gctx, states, e.stdout)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintln(e.stdout, consoleHelp)
		return console(gctx, readLines(e.stdin), ctrl, ex, e.stdout)
	})

	err = g.Wait()
	if err == nil || errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		logger.Info("Live session ended")
		return nil
	}
	return err
}

// loadLiveExercise loads the exercise and decodes its reference, if any.
func loadLiveExercise(ctx context.Context, e *env, path string) (session.Exercise, error) {
	ex, err := melody.LoadExercise(path)
	if err != nil {
		return session.Exercise{}, err
	}
	var ref []float64
	if ex.Reference != "" {
		decoder, err := transcode.NewDecoder(e.cfg.Decoder, e.logger)
		if err != nil {
			return session.Exercise{}, err
		}
		data, err := decoder.DecodeFile(ctx, ex.Reference)
		if err != nil {
			return session.Exercise{}, fmt.Errorf("decode reference: %w", err)
		}
		ref = data.PCM
	}
	return session.FromMelody(ex, ref, e.cfg.Audio.SampleRate), nil
}

// readLines feeds stdin lines to a channel. The reader goroutine stays
// blocked on stdin until the process exits.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

type liveControls interface {
	Start(ex session.Exercise) error
	Stop() error
	Cancel() error
	Done() error
	SetApplyAlignment(on bool) error
	State() session.State
}

// console runs one-letter commands until q or ctx is done. After the end
// of input the session keeps running for feed clients.
func console(ctx context.Context, lines <-chan string, ctrl liveControls, ex session.Exercise, out io.Writer) error {
	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			line = strings.TrimSpace(l)
		}

		var err error
		switch line {
		case "":
			continue
		case "s":
			err = ctrl.Start(ex)
		case "x":
			err = ctrl.Stop()
		case "c":
			err = ctrl.Cancel()
		case "d":
			err = ctrl.Done()
		case "a":
			err = ctrl.SetApplyAlignment(!ctrl.State().ApplyAlignment)
		case "q":
			return errQuit
		default:
			fmt.Fprintln(out, consoleHelp)
			continue
		}
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", line, err)
		}
	}
}

// printStates prints phase changes and the score of each take.
func printStates(ctx context.Context, states <-chan session.State, out io.Writer) {
	var last session.Phase
	for {
		var s session.State
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			s = st
		}
		if s.Phase == last {
			continue
		}
		last = s.Phase

		switch {
		case s.Phase == session.PhaseReplay && s.Score != nil:
			fmt.Fprintf(out, "score %.1f (%s, avg %+.1f cents)", s.Score.Overall, s.Score.Tendency, s.Score.AvgCentsError)
			if s.Alignment != nil {
				fmt.Fprintf(out, ", offset %.1f ms via %s", s.Alignment.Model.OffsetMs(), s.Alignment.Strategy)
			}
			fmt.Fprintln(out)
		case s.Phase == session.PhaseIdle && s.Err != "":
			fmt.Fprintf(out, "take failed: %s\n", s.Err)
		default:
			fmt.Fprintln(out, s.Phase)
		}
	}
}
