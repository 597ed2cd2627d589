// stil-dev converts STIL test-pattern files into the VCT vector format
// (plus the timing-only REX sidecar) for 256-channel test equipment.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/zfoxbaby/stil-dev/internal/chanmap"
	"github.com/zfoxbaby/stil-dev/internal/config"
	"github.com/zfoxbaby/stil-dev/internal/convert"
	"github.com/zfoxbaby/stil-dev/internal/logger"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"

	exitOK        = 0
	exitCancelled = 1
	exitError     = 2
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	input := flag.String("in", "", "source STIL file")
	output := flag.String("out", "", "target VCT file (default: source with .vct extension)")
	mapFile := flag.String("map", "", "signal-to-channel map (.csv or .xlsx)")
	overview := flag.Bool("overview", false, "print the signal overview and exit")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	// Initialize Sentry (optional)
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "stil-dev@" + releaseVersion,
			Debug:       cfg.Environment != environmentProduction,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: stil-dev -in pattern.stil [-out pattern.vct] [-map channels.csv]")
		flag.PrintDefaults()
		return exitError
	}
	target := *output
	if target == "" {
		ext := filepath.Ext(*input)
		target = strings.TrimSuffix(*input, ext) + ".vct"
	}

	conv := convert.New(*input, target, logSink, cfg.Debug)
	conv.InstructionMapper().SetDisabled(cfg.DisabledInstructions)
	if cfg.CharMapFile != "" {
		rules, err := os.ReadFile(cfg.CharMapFile)
		if err != nil {
			logger.Error("failed to read char-map file", err, logger.Fields{"path": cfg.CharMapFile})
			return exitError
		}
		count := conv.CharMapper().ParseMappingLines(string(rules))
		logger.Info("loaded vector char mappings", logger.Fields{"count": count, "path": cfg.CharMapFile})
	}

	if *overview {
		signals, err := conv.ReadStilOverview(true)
		if err != nil {
			logger.Error("overview failed", err, logger.Fields{"source": *input, "run_id": conv.RunID()})
			return exitError
		}
		for _, signal := range signals {
			fmt.Println(signal)
		}
		return exitOK
	}

	if *mapFile != "" {
		mapping, err := chanmap.Load(*mapFile)
		if err != nil {
			logger.Error("channel map rejected", err, logger.Fields{"path": *mapFile, "run_id": conv.RunID()})
			return exitError
		}
		conv.SetChannelMapping(mapping)
		logger.Info("channel map loaded", logger.Fields{"path": *mapFile, "signals": len(mapping)})
	}

	// A second interrupt kills the process; the first one stops the
	// conversion cleanly, leaving the partial VCT without its trailer.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("stop requested, finishing the statement in flight", logger.Fields{"run_id": conv.RunID()})
		conv.Stop()
		signal.Stop(sigCh)
	}()

	status, err := conv.Convert()
	switch status {
	case convert.StatusOK:
		return exitOK
	case convert.StatusCancelled:
		return exitCancelled
	default:
		if err != nil {
			logger.Error("conversion failed", err, logger.Fields{"source": *input, "run_id": conv.RunID()})
		}
		return exitError
	}
}

// logSink colours conversion events into the CLI log.
func logSink(ev convert.Event) {
	fields := logger.Fields{"run_id": ev.RunID}
	if ev.Statement != "" {
		fields["statement"] = ev.Statement
	}
	switch ev.Level {
	case convert.LevelError:
		logger.Error(ev.Message, nil, fields)
	case convert.LevelWarning:
		logger.Warn(ev.Message, fields)
	default:
		logger.Info(ev.Message, fields)
	}
}
