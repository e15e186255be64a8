package main

import (
	"chainledger/internal/core"
	"chainledger/internal/metrics"
	"chainledger/internal/platform/config"
	"chainledger/internal/platform/logger"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var validFormats = []string{"text", "json"}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	ConfigPath  string
	Chain       string
	Format      string
	Lang        string
	MetricsFile string

	printer *message.Printer
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "chainledger",
		Short:         "Ledger and integrity engine for jumpchain builds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return usageErrorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			tag, err := language.Parse(opts.Lang)
			if err != nil {
				return usageErrorf("invalid language %q: %v", opts.Lang, err)
			}
			opts.printer = message.NewPrinter(tag)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitUsage, err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	flags.StringVar(&opts.Chain, "chain", "main", "name given to a chain started in empty storage")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json)")
	flags.StringVar(&opts.Lang, "lang", "en", "language tag used to format numbers")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(
		newLoadCommand(opts),
		newVerifyCommand(opts),
		newBudgetCommand(opts),
		newBankCommand(opts),
		newSupplementCommand(opts),
		newRetainedCommand(opts),
		newArchiveCommand(opts),
		newRestoreCommand(opts),
		newPatchesCommand(opts),
	)
	return cmd
}

// output renders command results in the selected format.
type output struct {
	w       io.Writer
	format  string
	printer *message.Printer
}

func newOutput(cmd *cobra.Command, opts *rootOptions) output {
	return output{w: cmd.OutOrStdout(), format: opts.Format, printer: opts.printer}
}

// render writes data as indented JSON, or runs text for the text format.
func (o output) render(data any, text func()) error {
	if o.format == "json" {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text()
	return nil
}

func (o output) printf(format string, args ...any) {
	o.printer.Fprintf(o.w, format, args...)
}

// session is the service opened for a single command run.
type session struct {
	output
	opts *rootOptions
	cfg  config.Config
	log  *slog.Logger
	svc  *core.Service
	reg  *prometheus.Registry
}

func openSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	ctx := cmd.Context()
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	s := &session{
		output: newOutput(cmd, opts),
		opts:   opts,
		cfg:    cfg,
		log:    logger.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()),
	}
	svcOpts := []core.ServiceOption{core.WithLogger(s.log)}
	if cfg.Metrics || opts.MetricsFile != "" {
		s.reg = prometheus.NewRegistry()
		rec, err := metrics.New(s.reg)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, core.WithMetrics(rec))
	}
	sink, err := core.OpenPatchSink(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	svc, err := core.LoadService(ctx, opts.Chain, append(svcOpts, core.WithPatchSink(sink))...)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	s.svc = svc
	return s, nil
}

// close releases the sink and writes the metrics file when one was asked for.
func (s *session) close() error {
	err := s.svc.Close()
	if s.reg != nil && s.opts.MetricsFile != "" {
		err = errors.Join(err, prometheus.WriteToTextfile(s.opts.MetricsFile, s.reg))
	}
	return err
}

// withSession opens a session around fn and flushes pending changes after
// it succeeds.
func withSession(opts *rootOptions, fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (retErr error) {
		s, err := openSession(cmd, opts)
		if err != nil {
			return err
		}
		defer func() { retErr = errors.Join(retErr, s.close()) }()
		if err := fn(cmd, s, args); err != nil {
			return err
		}
		if _, err := s.svc.Flush(cmd.Context()); err != nil {
			return err
		}
		return nil
	}
}

func exactArgs(names ...string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != len(names) {
			return usageErrorf("expected %d argument(s) %v, got %d", len(names), names, len(args))
		}
		return nil
	}
}

// parseID reads a non-negative integer entity ID from a positional argument.
func parseID(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, usageErrorf("invalid %s id %q", name, raw)
	}
	return n, nil
}

func parseIDs(names []string, raw []string) ([]int, error) {
	ids := make([]int, len(raw))
	for i := range raw {
		id, err := parseID(names[i], raw[i])
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
