package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/scene-bridge/bridge"
	"github.com/wippyai/scene-bridge/gate"
	"github.com/wippyai/scene-bridge/scripthost"
	"github.com/wippyai/scene-bridge/worldsync"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Scene config (yaml)")
		replayFile  = flag.String("replay", "", "Journal to replay (.jsonl.zst)")
		verify      = flag.Bool("verify", false, "Compare replayed responses with the recording")
		recordFile  = flag.String("record", "", "Write a journal of every boundary call")
		wasmFile    = flag.String("wasm", "", "Scene module to run (core wasm)")
		funcName    = flag.String("func", "onUpdate", "Scene export to call each tick")
		ticks       = flag.Int("ticks", 1, "Number of ticks to run the scene")
		interactive = flag.Bool("i", false, "Interactive inspector")
		jsonLogs    = flag.Bool("json", false, "Log JSON instead of console output")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if (*replayFile == "") == (*wasmFile == "") {
		fmt.Fprintln(os.Stderr, "Usage: bridge -replay <session.jsonl.zst> [-config scene.yaml] [-verify] [-i]")
		fmt.Fprintln(os.Stderr, "       bridge -wasm <scene.wasm> [-config scene.yaml] [-func onUpdate] [-ticks n] [-record out.jsonl.zst] [-i]")
		os.Exit(1)
	}

	if *ticks < 1 {
		fmt.Fprintln(os.Stderr, "Error: -ticks must be at least 1")
		os.Exit(1)
	}

	// Log lines would tear the inspector's alt screen.
	log := zap.NewNop()
	if !*interactive {
		l, err := newLogger(*jsonLogs, *verbose)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
		defer func() { _ = log.Sync() }()
	}

	opts := runOptions{
		configFile: *configFile,
		replayFile: *replayFile,
		recordFile: *recordFile,
		wasmFile:   *wasmFile,
		funcName:   *funcName,
		ticks:      *ticks,
		verify:     *verify,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configFile string
	replayFile string
	recordFile string
	wasmFile   string
	funcName   string
	ticks      int
	verify     bool
}

func newLogger(jsonLogs, verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	if jsonLogs {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	bridge.SetLogger(l.Named("bridge"))
	gate.SetLogger(l.Named("gate"))
	worldsync.SetLogger(l.Named("worldsync"))
	scripthost.SetLogger(l.Named("scripthost"))
	return l, nil
}

// open builds the session and the stepper that drives it.
func open(ctx context.Context, opts runOptions, log *zap.Logger) (*session, stepper, error) {
	cfg, err := LoadSceneConfig(opts.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	s, err := newSession(cfg, opts.recordFile, log)
	if err != nil {
		return nil, nil, fmt.Errorf("create bridge: %w", err)
	}

	var st stepper
	if opts.replayFile != "" {
		st, err = newReplayStepper(s, opts.replayFile, opts.verify)
	} else {
		st, err = newSceneStepper(ctx, s, opts.wasmFile, opts.funcName)
	}
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, st, nil
}

func run(opts runOptions, log *zap.Logger) error {
	ctx := context.Background()

	s, st, err := open(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.Close()
	defer st.Close(ctx)

	limit := 0
	if opts.wasmFile != "" {
		limit = opts.ticks
	}
	steps, mismatches, err := runSteps(ctx, st, limit, os.Stdout)
	if err != nil {
		return fmt.Errorf("step %d: %w", steps+1, err)
	}

	fmt.Printf("Scene: %s\n", s.cfg.Scene)
	fmt.Printf("Steps: %d\n\n", steps)
	s.printSummary(os.Stdout)

	if mismatches > 0 {
		return fmt.Errorf("%d of %d responses differ from the recording", mismatches, steps)
	}
	return nil
}
