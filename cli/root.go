package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentflux/fluxdiff/fluxdiff"
	"github.com/agentflux/fluxdiff/internal/backend"
	"github.com/agentflux/fluxdiff/internal/codec"
	"github.com/agentflux/fluxdiff/internal/config"
	"github.com/agentflux/fluxdiff/internal/diffreport"
	"github.com/agentflux/fluxdiff/internal/fs"
	"github.com/agentflux/fluxdiff/internal/logging"
	"github.com/agentflux/fluxdiff/internal/mcpserver"
	"github.com/agentflux/fluxdiff/internal/nvim"
	"github.com/agentflux/fluxdiff/internal/observability"
	"github.com/agentflux/fluxdiff/internal/patcher"
	"github.com/agentflux/fluxdiff/internal/render"
	"github.com/agentflux/fluxdiff/internal/server"
	"github.com/agentflux/fluxdiff/internal/source"
	"github.com/agentflux/fluxdiff/internal/tui"
	"github.com/agentflux/fluxdiff/internal/ui"
	"github.com/agentflux/fluxdiff/model"
)

// NewRootCmd constructs the fluxdiff command tree.
func NewRootCmd() *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:           "fluxdiff",
		Short:         "Encode, decode and review multi-file bundles exchanged with language models",
		Version:       mcpserver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}
	BindPersistent(cmd.PersistentFlags(), cfg)

	cmd.AddCommand(newDecodeCmd(cfg))
	cmd.AddCommand(newEncodeCmd(cfg))
	cmd.AddCommand(newDiffCmd(cfg))
	cmd.AddCommand(newApplyCmd(cfg))
	cmd.AddCommand(newReviewCmd(cfg))
	cmd.AddCommand(newServeCmd(cfg))
	cmd.AddCommand(newMCPCmd(cfg))
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		ui.Error("Error: %v", err)
		os.Exit(1)
	}
}

func newApp(cfg *Config) *fluxdiff.App {
	return fluxdiff.New(nil, fluxdiff.WithExtensions(cfg.Extensions))
}

func newDecodeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Split marked bundle text into files",
		Long:  "Decode bundle text from a file, '-' for stdin, or the pipe/clipboard when no file is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := source.New().GetContent(argOr(args, 0, ""))
			if err != nil {
				return err
			}
			bundle, diags := newApp(cfg).Decode(text)
			for _, d := range diags {
				ui.Warning("%s: %s", d.Kind, d.Message)
			}

			if cfg.Write {
				resolver, err := fs.NewPathResolver(cfg.LookupDirs)
				if err != nil {
					return err
				}
				return writeBundle(resolver, bundle)
			}

			if cfg.Format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"files": bundle, "diagnostics": nonNil(diags)})
			}
			out := cmd.OutOrStdout()
			for _, name := range bundle.Names() {
				fmt.Fprintf(out, "%s\t%d lines\n", name, len(diffreport.SplitLines(bundle[name])))
			}
			return nil
		},
	}
	BindOutput(cmd.Flags(), cfg)
	cmd.Flags().BoolVarP(&cfg.Write, "write", "w", false, "Write decoded files below the first lookup directory.")
	return cmd
}

func newEncodeCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <paths...>",
		Short: "Pack files and directories into marked bundle text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := fs.NewPathResolver(cfg.LookupDirs)
			if err != nil {
				return err
			}
			bundle, err := resolver.ReadBundle(args, cfg.Extensions)
			if err != nil {
				return err
			}
			for _, name := range bundle.Names() {
				if !codec.ValidFilename(name) {
					return fmt.Errorf("filename cannot be encoded: %q", name)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), newApp(cfg).Encode(bundle))
			return nil
		},
	}
}

func newDiffCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <original> <refined>",
		Short: "Diff two files, or two bundles when the original holds filename markers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			refined, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}

			app := newApp(cfg)
			if !codec.HasMarkers(string(original)) {
				name := filepath.ToSlash(filepath.Base(args[0]))
				report := app.Diff(name, string(original), string(refined))
				return printReports(cmd.OutOrStdout(), cfg.Format, map[string]model.FileDiffReport{name: report})
			}

			originalBundle, _ := app.Decode(string(original))
			result, err := app.Review(cmd.Context(), originalBundle, string(refined))
			if err != nil {
				return err
			}
			if cfg.Format != FormatJSON {
				ui.PrintSummary(result.Summary)
			}
			return printReports(cmd.OutOrStdout(), cfg.Format, result.DiffLines)
		},
	}
	BindOutput(cmd.Flags(), cfg)
	return cmd
}

func newApplyCmd(cfg *Config) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "apply <original-file> <diff-file>",
		Short: "Replay a unified diff, fixing its hunk headers first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			diffText, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}

			lines := diffreport.SplitLines(string(original))
			report := diffreport.Parse(string(diffText))
			report.Filename = filepath.ToSlash(filepath.Base(args[0]))

			corrected, err := patcher.Correct(lines, report)
			if err != nil {
				return err
			}
			patched, err := patcher.Apply(lines, corrected)
			if err != nil {
				return err
			}

			body := strings.Join(patched, "\n")
			if len(patched) > 0 {
				body += "\n"
			}
			if !write {
				_, err := io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			if err := os.WriteFile(args[0], []byte(body), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}
			ui.Success("Patched %s", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Overwrite the original file instead of printing the result.")
	return cmd
}

func newReviewCmd(cfg *Config) *cobra.Command {
	var originals []string
	cmd := &cobra.Command{
		Use:   "review --original <bundle|paths> [refined]",
		Short: "Review refined bundle text against the original files",
		Long: "The original is a file holding a marked bundle, or files and directories read from disk. " +
			"The refined text comes from a file, '-' for stdin, or the pipe/clipboard.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := fs.NewPathResolver(cfg.LookupDirs)
			if err != nil {
				return err
			}
			app := newApp(cfg)
			original, err := loadOriginal(app, resolver, originals, cfg.Extensions)
			if err != nil {
				return err
			}
			refinedText, err := source.New().GetContent(argOr(args, 0, ""))
			if err != nil {
				return err
			}

			result, err := runReview(cmd.Context(), app, original, refinedText, cfg.NoAnimation)
			if err != nil || result == nil {
				return err
			}

			refined := refinedFiles(result)
			switch {
			case cfg.Write:
				return writeBundle(resolver, refined)
			case cfg.Nvim:
				return stageBundle(resolver, refined, cfg.NoAnimation)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&originals, "original", "o", nil, "Original bundle file, or files and directories to read.")
	_ = cmd.MarkFlagRequired("original")
	BindReview(cmd.Flags(), cfg)
	return cmd
}

// loadOriginal decodes a single bundle file, or reads the paths from disk.
func loadOriginal(app *fluxdiff.App, resolver *fs.PathResolver, paths, extensions []string) (model.Bundle, error) {
	if len(paths) == 1 {
		if info, err := os.Stat(paths[0]); err == nil && !info.IsDir() {
			content, err := os.ReadFile(paths[0])
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", paths[0], err)
			}
			if codec.HasMarkers(string(content)) {
				bundle, _ := app.Decode(string(content))
				return bundle, nil
			}
		}
	}
	return resolver.ReadBundle(paths, extensions)
}

func runReview(ctx context.Context, app *fluxdiff.App, original model.Bundle, refinedText string, noAnimation bool) (*fluxdiff.Result, error) {
	if noAnimation {
		result, err := app.Review(ctx, original, refinedText)
		if err != nil {
			return nil, err
		}
		ui.PrintSummary(result.Summary)
		return result, nil
	}

	final, err := tea.NewProgram(tui.New(app, original, refinedText)).Run()
	if err != nil {
		return nil, fmt.Errorf("error running program: %w", err)
	}
	m := final.(tui.Model)
	if m.Err() != nil {
		return nil, m.Err()
	}
	if m.Result() != nil {
		ui.PrintSummary(m.Result().Summary)
	}
	return m.Result(), nil
}

// refinedFiles keeps the files the refined text actually carried.
func refinedFiles(result *fluxdiff.Result) model.Bundle {
	refined := make(model.Bundle)
	for _, group := range [][]string{result.Summary.Changed, result.Summary.Added} {
		for _, name := range group {
			refined[name] = result.BrokenDownRefined[name]
		}
	}
	return refined
}

func writeBundle(resolver *fs.PathResolver, bundle model.Bundle) error {
	created, modified, err := resolver.WriteBundle(bundle)
	for _, path := range created {
		ui.Success("Created %s", path)
	}
	for _, path := range modified {
		ui.Success("Modified %s", path)
	}
	return err
}

func stageBundle(resolver *fs.PathResolver, bundle model.Bundle, quiet bool) error {
	if len(bundle) == 0 {
		return nil
	}
	manager, err := nvim.New()
	if err != nil {
		return err
	}
	defer manager.Close()

	changes := nvim.Changes(bundle, resolver)
	progress := func(done int) {
		if !quiet {
			ui.Info("Staged %d/%d", done, len(changes))
		}
	}
	staged, failed := manager.Stage(changes, progress)
	for _, path := range failed {
		ui.Error("Failed to stage %s", path)
	}
	if manager.SelfStarted() {
		// A headless instance disappears on Close, so its buffers are saved.
		if err := manager.SaveAllBuffers(); err != nil {
			return err
		}
		ui.Success("Saved %d file(s) through a headless Neovim", len(staged))
	} else {
		ui.Success("Staged %d file(s) in Neovim buffers", len(staged))
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to stage %d file(s)", len(failed))
	}
	return nil
}

func newServeCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP refinement service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCfg, err := config.Load(cfg.ConfigFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := svcCfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger, err := logging.NewLogger(svcCfg.Logging.Level, svcCfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			refiner, err := backend.New(ctx, svcCfg.Backend)
			if err != nil {
				return fmt.Errorf("init backend: %w", err)
			}

			var metrics *observability.Metrics
			if svcCfg.Server.MetricsEnabled {
				metrics = observability.NewMetrics()
			}
			app := fluxdiff.New(refiner,
				fluxdiff.WithExtensions(cfg.Extensions),
				fluxdiff.WithLogger(logger),
				fluxdiff.WithMetrics(metrics),
			)

			logger.Info("backend ready",
				zap.String("backend", refiner.Name()),
				zap.Bool("metrics", metrics != nil),
			)
			return server.New(svcCfg.Server, app, logger, metrics).Run(ctx)
		},
	}
}

func newMCPCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the bundle tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpserver.ServeStdio(newApp(cfg))
		},
	}
}

func printReports(w io.Writer, format string, reports map[string]model.FileDiffReport) error {
	if format == FormatJSON {
		return writeJSON(w, reports)
	}

	for _, name := range slices.Sorted(maps.Keys(reports)) {
		report := reports[name]
		if report.Identical() {
			continue
		}
		var out string
		switch format {
		case FormatPlain:
			out = render.Plain(report)
		case FormatHTML:
			out = render.HTML(report)
		default:
			out = render.Terminal(report)
		}
		fmt.Fprintln(w, out)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(diags []codec.Diagnostic) []codec.Diagnostic {
	if diags == nil {
		return []codec.Diagnostic{}
	}
	return diags
}

func argOr(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}
