// Command hostsim runs the add-on framework and the multipet tracker against
// the in-memory host, with the journal, index, metrics and observer stream
// attached. Chat commands are read from stdin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"addonhost/internal/commands"
	"addonhost/internal/config"
	"addonhost/internal/framework"
	"addonhost/internal/host/simhost"
	"addonhost/internal/logging"
	"addonhost/internal/metrics"
	"addonhost/internal/multipet"
	"addonhost/internal/persistence/indexdb"
	persistlog "addonhost/internal/persistence/log"
	"addonhost/internal/persistence/snapshot"
	"addonhost/internal/transport/observer"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/addonhost.yaml", "config file (missing file means defaults)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides data_dir)")
		addr       = flag.String("addr", "", "http listen address for /metrics and /observer (overrides http.addr; \"off\" disables)")
		readStdin  = flag.Bool("stdin", true, "read chat commands from stdin")
		runFor     = flag.Duration("for", 0, "stop after this long (0 runs until signalled)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, *dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	switch strings.TrimSpace(*addr) {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = strings.TrimSpace(*addr)
	}

	logger := logging.New(os.Stderr, "hostsim", logging.Resolve(logging.ProfileRuntime, cfg.Log))

	ctx, cancel := signalContext()
	defer cancel()
	if *runFor > 0 {
		var c2 context.CancelFunc
		ctx, c2 = context.WithTimeout(ctx, *runFor)
		defer c2()
	}

	if err := run(ctx, cfg, logger, *readStdin); err != nil {
		logger.Fatal().Err(err).Msg("hostsim stopped")
	}
}

func loadConfig(path, dataDir string) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err = config.Load(path)
	} else if os.IsNotExist(statErr) {
		cfg, err = config.Parse(nil)
	} else {
		return cfg, statErr
	}
	if err != nil {
		return cfg, err
	}
	if dataDir != "" {
		cfg = cfg.WithDataDir(dataDir)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, readStdin bool) error {
	opts := simhost.DefaultOptions()
	opts.Layout = cfg.Layout
	opts.Slots = cfg.Sim.Slots
	h, err := simhost.New(opts)
	if err != nil {
		return fmt.Errorf("simhost: %w", err)
	}

	// Event sinks, in the order they see each event.
	sinks := multipet.MultiSink{metrics.Sink{}}

	var journal *persistlog.EventLogger
	if cfg.Journal.Enabled {
		journal = persistlog.NewEventLogger(cfg.DataDir)
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Warn().Err(err).Msg("close journal")
			}
		}()
		sinks = append(sinks, journal)
	}

	var idx *indexdb.SQLiteIndex
	if cfg.Index.Enabled {
		idx, err = indexdb.OpenSQLite(cfg.Index.Path)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer func() {
			if err := idx.Close(); err != nil {
				logger.Warn().Err(err).Msg("close index")
			}
		}()
		sinks = append(sinks, idx)
	}

	hub := observer.NewHub(logging.Component(logger, "observer"), cfg.Sim.TickRateHz)
	defer hub.Close()
	sinks = append(sinks, hub)

	dumper := &snapshot.Dumper{Dir: cfg.Snapshot.Dir}
	if idx != nil {
		dumper.Recorder = idx
	}

	chat := &stdoutChat{}
	cmds := commands.NewRegistry(chat)
	mod := multipet.New(h.Client(), multipet.Options{
		Config:   cfg.MultiPet,
		Logger:   logger,
		Sink:     sinks,
		Commands: cmds,
		Dumper:   dumper,
	})

	fw := framework.New(h.Patcher(), logging.Component(logger, "framework"))
	if err := fw.Register(mod); err != nil {
		return err
	}
	if err := fw.Initialize(h.EntryPoints()); err != nil {
		return fmt.Errorf("framework: %w", err)
	}
	logger.Info().Strs("mods", fw.Active()).Strs("hooks", fw.Hooks()).Msg("framework ready")

	sc := newScenario(cfg.Sim.Scenario, logging.Component(logger, "scenario"))
	if err := sc.registerCommands(cmds, h); err != nil {
		return err
	}
	player := h.EnterWorld(cfg.Sim.Player)
	logger.Info().Uint32("player_id", player).Str("name", cfg.Sim.Player).Int("slots", cfg.Sim.Slots).Msg("entered world")

	every := uint64(cfg.Sim.PublishEveryTicks)
	onTick := func(tick uint64) {
		sc.step(h, tick)
		if tick%every != 0 {
			return
		}
		st := mod.State()
		hub.Publish(st)
		metrics.Observe(st)
		if idx != nil {
			s := idx.Stats()
			metrics.RecordSink("index", s.QueueDepth, s.DropEventTotal+s.DropSnapshotTotal)
		}
		if journal != nil {
			metrics.RecordSink("journal", 0, uint64(journal.Lost()))
		}
		metrics.RecordSink("observer", 0, hub.Dropped())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Int("hz", cfg.Sim.TickRateHz).Msg("host loop started")
		err := h.Run(gctx, cfg.Sim.TickRateHz, onTick)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/observer/bootstrap", hub.BootstrapHandler())
		mux.HandleFunc("/observer/ws", hub.WSHandler())
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			<-gctx.Done()
			hub.Close()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if readStdin {
		// Not part of the group: a blocked stdin read cannot be cancelled.
		go readCommands(gctx, os.Stdin, h, cmds, chat, logger)
	}

	runErr := g.Wait()

	// The loop has stopped; the tracker is ours to touch from here on.
	if cfg.Snapshot.OnShutdown {
		if path, err := dumper.Dump(mod.State()); err != nil {
			logger.Warn().Err(err).Msg("shutdown dump")
		} else {
			logger.Info().Str("path", path).Msg("shutdown dump written")
		}
	}
	if err := fw.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("framework shutdown")
	}
	if journal != nil {
		if err := journal.Err(); err != nil {
			logger.Warn().Err(err).Int("lost", journal.Lost()).Msg("journal write errors")
		}
	}
	return runErr
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
