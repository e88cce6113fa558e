package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/landcover/internal/config"
	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/ledger"
	"github.com/banshee-data/landcover/internal/pipeline"
	"github.com/banshee-data/landcover/internal/raster"
	"github.com/banshee-data/landcover/internal/timeutil"
	"github.com/banshee-data/landcover/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprint(w, `Usage: landcover [flags] <command> [args]

Commands:
  preprocess         Cut the manifest's scenes into training tiles
  train              Train a model on the tile dataset
  predict [files]    Classify rasters (default: data_predict patterns)
  runs [run-id]      List recorded runs, or show one run in detail
  migrate <action>   Manage the ledger schema (up, down, status, force)
  version            Print version information

Flags:
`)
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("landcover", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to the pipeline configuration JSON")
	verbose := fs.Bool("v", false, "Enable per-tile trace logging")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		usage(stderr, fs)
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "landcover %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return 0
	}

	var trace io.Writer
	if *verbose {
		trace = stderr
	}
	pipeline.SetLogWriters(stderr, stderr, trace)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "landcover: %v\n", err)
		return 1
	}

	if cmd == "migrate" {
		if err := ledger.RunMigrateCommand(rest, cfg.GetLedgerPath(), stdout); err != nil {
			fmt.Fprintf(stderr, "landcover: %v\n", err)
			return 1
		}
		return 0
	}

	var led *ledger.Store
	if path := cfg.GetLedgerPath(); path != "" {
		led, err = ledger.Open(path)
		if err != nil {
			fmt.Fprintf(stderr, "landcover: %v\n", err)
			return 1
		}
		defer led.Close()
	}

	if cmd == "runs" {
		if led == nil {
			fmt.Fprintln(stderr, "landcover: runs: ledger_path is not configured")
			return 1
		}
		if err := ledger.RunRunsCommand(rest, led, stdout); err != nil {
			fmt.Fprintf(stderr, "landcover: runs: %v\n", err)
			return 1
		}
		return 0
	}

	fsys := fsutil.OSFileSystem{}
	p := pipeline.New(cfg, fsys, raster.NewTIFFStore(fsys), timeutil.RealClock{}, led)

	switch cmd {
	case "preprocess":
		results, err := p.Preprocess(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "landcover: preprocess: %v\n", err)
			return 1
		}
		tiles, failed := 0, 0
		for _, r := range results {
			tiles += r.Tiles
			if r.Err != nil {
				failed++
			}
		}
		fmt.Fprintf(stdout, "preprocess: %d entries, %d tiles written, %d failed\n", len(results), tiles, failed)
	case "train":
		state, err := p.Train(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "landcover: train: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "train: %d epochs, best loss %.5f, checkpoint %s\n", state.Epoch, state.BestLoss, state.BestCheckpoint)
	case "predict":
		sum, err := p.Predict(ctx, rest)
		if err != nil {
			fmt.Fprintf(stderr, "landcover: predict: %v\n", err)
			return 1
		}
		for _, r := range sum.Results {
			if r.Err != nil {
				fmt.Fprintf(stdout, "%s\t%s\t%v\n", r.Input, r.State, r.Err)
			} else {
				fmt.Fprintf(stdout, "%s\t%s\t%s\n", r.Input, r.State, r.Output)
			}
		}
		fmt.Fprintf(stdout, "predict: %d written, %d skipped, %d failed\n", sum.Written, sum.Skipped, sum.Failed)
	default:
		fmt.Fprintf(stderr, "landcover: unknown command %q\n\n", cmd)
		usage(stderr, fs)
		return 2
	}
	return 0
}
