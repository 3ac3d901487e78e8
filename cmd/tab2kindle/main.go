package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/japaniel/tab2kindle/pkg/compiler"
	"github.com/japaniel/tab2kindle/pkg/config"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tab2kindle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFlag := fs.String("config", "", "Path to a YAML config file")
	cleanFlag := fs.Bool("clean", false, "Strip unusable markup from the source (rewrites it in place) before compiling")
	cssFlag := fs.String("css", "", "Stylesheet embedded into every page")
	outFlag := fs.String("out", "", "Output directory (default: next to the source)")
	layoutFlag := fs.String("layout", "", "Page layout: paged or single")
	pageSizeFlag := fs.Int("page-size", 0, "Entries per page in the paged layout")
	titleFlag := fs.String("title", "", "Dictionary title (default: source file name)")
	levelFlag := fs.String("log-level", "", "Log level: debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tab2kindle [flags] <source.txt>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return compiler.ExitOK
		}
		return compiler.ExitUnknown
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return compiler.ExitUnknown
	}
	// Paths dragged onto a terminal arrive quoted.
	source := strings.Trim(fs.Arg(0), `"'`)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return compiler.ExitUnknown
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "clean":
			cfg.Build.Clean = *cleanFlag
		case "css":
			cfg.Output.CSSPath = *cssFlag
		case "out":
			cfg.Output.Dir = *outFlag
		case "layout":
			cfg.Output.Layout = *layoutFlag
		case "page-size":
			cfg.Output.PageSize = *pageSizeFlag
		case "title":
			cfg.Output.Title = *titleFlag
		case "log-level":
			cfg.Log.Level = *levelFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return compiler.ExitUnknown
	}

	logger := config.NewLogger(cfg.Log)

	p := compiler.NewPipeline(*cfg, logger)
	var mu sync.Mutex
	last := -1
	p.OnProgress = func(done, total int) {
		if total == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if pct := done * 100 / total; pct/10 != last/10 {
			last = pct
			fmt.Fprintf(stdout, "Resolving links: %d%% (%d/%d)\n", pct, done, total)
		}
	}

	fmt.Fprintf(stdout, "Compiling %s...\n", source)
	sum, err := p.Run(ctx, source)
	if err != nil {
		fmt.Fprintf(stderr, "Compilation failed: %v\n", err)
		return compiler.ExitCode(err)
	}

	fmt.Fprintf(stdout, "Processing complete: %d entries, %d pages, manifest %s\n",
		sum.Output.Entries, len(sum.Output.Pages), sum.Output.Manifest)
	return compiler.ExitOK
}
