package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/haolipeng/agentsight/correlate"
	"github.com/haolipeng/agentsight/database"
	"github.com/haolipeng/agentsight/sigma"
	"github.com/haolipeng/agentsight/types"
)

const pollTimeout = 100 * time.Millisecond

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log.SetOutput(os.Stderr)
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(cfg); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfg *Config) error {
	filterCfg, err := cfg.FilterConfig()
	if err != nil {
		return err
	}

	sinks := correlate.MultiSink{correlate.NewStdoutSink()}

	if cfg.DBDir != "" {
		// The database directory should belong to the invoking user, not
		// root. Failure to drop is survivable.
		if err := dropPrivileges(); err != nil {
			log.Warnf("failed to drop privileges: %v", err)
		}
		db, err := database.New(cfg.DBDir)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()
		sinks = append(sinks, db)
	}

	if cfg.SigmaRulesDir != "" {
		detector, err := sigma.NewDetector(cfg.SigmaRulesDir)
		if err != nil {
			return fmt.Errorf("failed to load sigma rules: %w", err)
		}
		sinks = append(sinks, detector)
	}

	engine := correlate.NewEngine(filterCfg, cfg.MinDurationMs, sinks)

	snapshot, err := scanProcesses()
	if err != nil {
		return fmt.Errorf("failed to snapshot existing processes: %w", err)
	}
	tracked := engine.Seed(snapshot)
	log.Debugf("seeded tracker with %d of %d existing processes (mode=%s)",
		tracked, len(snapshot), filterCfg.Mode)

	source, cleanup, err := InitEventSource()
	if err != nil {
		return fmt.Errorf("failed to initialize event source: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	return consume(source, engine, sig)
}

// consume is the single-threaded event loop: poll with a bounded wait,
// decode, dispatch, repeat until a signal arrives. Only a real source
// failure is an error.
func consume(source EventSource, engine *correlate.Engine, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Debugf("received %v, shutting down", s)
			return nil
		default:
		}

		record, err := source.Poll(pollTimeout)
		if errors.Is(err, ErrPollTimeout) {
			continue
		}
		if errors.Is(err, ErrSourceClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("event source failure: %w", err)
		}

		event, err := types.Decode(record.RawSample)
		if err != nil {
			log.Debugf("dropping event: %v", err)
			continue
		}

		if err := engine.HandleEvent(event); err != nil {
			log.Errorf("failed to emit record: %v", err)
		}
	}
}
