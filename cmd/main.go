package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/adapters"
	"github.com/brettbedarf/zexplorer/config"
	"github.com/brettbedarf/zexplorer/internal/transfer"
	"github.com/brettbedarf/zexplorer/internal/util"
	"github.com/brettbedarf/zexplorer/requests"
	"github.com/brettbedarf/zexplorer/session"
)

const usage = `Usage: zexplorer [flags] <command> [args]

Commands:
  list [path|mask]   List a directory (default /) or a doublestar mask
  paste <plan>       Run a .json/.yaml paste plan
  delete <path>...   Delete files or directories

Flags:
`

func main() {
	var (
		configPath string
		verbose    int
		root       string
		policy     string
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (.yaml, .yml or .json)")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.IntVar(&verbose, "verbose", 3, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", 3, "--verbose (shorthand)")
	flag.StringVar(&root, "root", "", "Root directory of the local provider. Overrides the config file.")
	flag.StringVar(&policy, "policy", "", "Conflict policy for paste (skip, overwrite or rename). Overrides the plan.")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logger on stderr so listings stay pipeable
	util.InitializeLoggerTo(os.Stderr, util.LevelFromVerbosity(verbose))
	logger := util.GetLogger("main")

	cmd := flag.Arg(0)
	if cmd == "" {
		flag.Usage()
		os.Exit(2)
	}

	override := &config.ConfigOverride{}
	if configPath != "" {
		var err error
		if override, err = config.LoadConfigOverrideFile(configPath); err != nil {
			logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
		logger.Debug().Str("config", configPath).Msg("Config file loaded successfully")
	}
	override.LogLvl = &verbose
	if root != "" {
		override.LocalRoot = &root
	}
	cfg := config.NewConfig(override)

	// Register all built-in providers
	providers := adapters.NewRegistry()
	adapters.RegisterBuiltins(providers)
	raw := fmt.Appendf(nil, `{"type":%q,"root":%q}`, adapters.LocalType, cfg.LocalRoot)
	provider, err := providers.NewProvider(raw)
	if err != nil {
		logger.Fatal().Err(err).Str("root", cfg.LocalRoot).Msg("Failed to create local provider")
	}
	local := provider.(*adapters.Local)

	s, err := session.New(cfg, provider, session.Options{Registerer: prometheus.NewRegistry()})
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	defer s.Close()

	// Cancel between operations on SIGINT/SIGTERM; the one in flight finishes
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	logger.Info().Str("command", cmd).Str("root", cfg.LocalRoot).Msg("zexplorer starting")
	args := flag.Args()[1:]
	switch cmd {
	case "list":
		err = list(ctx, s, args)
	case "paste":
		err = paste(ctx, s, args, policy)
	case "delete":
		err = remove(ctx, s, local, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Str("command", cmd).Msg("Command failed")
		s.Close()
		os.Exit(1)
	}
}

func list(ctx context.Context, s *session.Session, args []string) error {
	target := "/"
	if len(args) > 0 {
		target = args[0]
	}
	q := zexplorer.Query{Connection: s.Connection(), Kind: zexplorer.KindLocal, Payload: target, Shape: zexplorer.ShapeFiles}
	if strings.ContainsAny(target, "*?[{") {
		q.Kind = zexplorer.KindMask
	}

	items, err := s.List(ctx, q)
	if err != nil {
		return err
	}
	for _, h := range items {
		line := h.Key
		if h.Dir {
			line += "/"
		}
		if h.Attrs != nil {
			if size, ok := h.Attrs.Attributes()["size"]; ok && !h.Dir {
				line += "\t" + size
			}
		}
		fmt.Println(line)
	}
	return nil
}

func paste(ctx context.Context, s *session.Session, args []string, policy string) error {
	if len(args) != 1 {
		return fmt.Errorf("paste takes exactly one plan file, got %d arguments", len(args))
	}
	plan, err := requests.LoadPastePlanFile(args[0], s.Connection())
	if err != nil {
		return err
	}
	if policy != "" {
		plan.Policy = policy
	}
	report, err := s.Paste(ctx, plan, nil, newLogSink(ctx))
	if err != nil {
		return err
	}
	printReport(report)
	return report.Err()
}

func remove(ctx context.Context, s *session.Session, local *adapters.Local, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("delete needs at least one path")
	}
	handles := make([]zexplorer.ResourceHandle, 0, len(args))
	for _, key := range args {
		h, err := local.Handle(key)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}
	report := s.Delete(ctx, handles, newLogSink(ctx))
	printReport(report)
	return report.Err()
}

func printReport(r transfer.Report) {
	fmt.Printf("batch %s: %d succeeded, %d failed, %d skipped\n", r.ID, len(r.Succeeded), len(r.Failed), len(r.Skipped)+len(r.ConflictSkipped))
	for _, f := range r.Failed {
		fmt.Println("  " + f.Error())
	}
	for _, c := range r.ConflictSkipped {
		fmt.Printf("  skipped %s into %s: %s\n", c.Pair.Source.Key, c.Pair.Destination.Key, c.Reason)
	}
}

// logSink reports progress through the logger and cancels with ctx
type logSink struct {
	ctx    context.Context
	logger util.Logger
}

func newLogSink(ctx context.Context) *logSink {
	return &logSink{ctx: ctx, logger: util.GetLogger("Progress")}
}

func (p *logSink) Progress(done, total int, op zexplorer.MoveCopyOperation) {
	p.logger.Info().Int("done", done).Int("total", total).Str("source", op.Source.Key).Msg("Progress")
}

func (p *logSink) Cancelled() bool {
	return p.ctx.Err() != nil
}
