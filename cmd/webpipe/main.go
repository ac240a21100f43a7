// Command webpipe serves the bounded web-research tool surface. The
// mcp-stdio subcommand speaks line-delimited JSON-RPC on stdin/stdout;
// eval-matrix runs the fixture harness.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/webpipe/internal/cache"
	"github.com/hyperifyio/webpipe/internal/config"
	"github.com/hyperifyio/webpipe/internal/eval"
	"github.com/hyperifyio/webpipe/internal/tools"
)

func main() {
	root := &cobra.Command{
		Use:           "webpipe",
		Short:         "Bounded web-research evidence service for LLM agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(mcpStdioCmd(), evalMatrixCmd(), cacheCmd())
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("webpipe exited with error")
		os.Exit(1)
	}
}

// setupLogging routes human logs to stderr; stdout belongs to the JSON-RPC
// channel.
func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func mcpStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-stdio",
		Short: "Serve the tool surface over stdio JSON-RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			srv := tools.NewServer(cfg)

			m := mcp.NewServer(&mcp.Implementation{
				Name:    "webpipe",
				Version: tools.Version,
			}, &mcp.ServerOptions{
				Instructions: "Use search_evidence (query and/or urls) to gather bounded, scored text evidence; web_fetch/web_extract for single URLs; web_cache_search_extract for offline replay.",
			})
			srv.Register(m)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log.Info().Str("version", tools.Version).Msg("webpipe mcp-stdio ready")
			if err := m.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			log.Info().Msg("webpipe exited gracefully")
			return nil
		},
	}
}

func evalMatrixCmd() *cobra.Command {
	var matrixPath string
	var pdfReport string
	cmd := &cobra.Command{
		Use:   "eval-matrix",
		Short: "Run the fixture-based eval matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			matrix, err := eval.LoadMatrix(matrixPath)
			if err != nil {
				return err
			}
			srv := tools.NewServer(cfg)
			runner := &eval.Runner{Sched: srv.Sched}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			outcomes := runner.Run(ctx, matrix)
			failed := eval.Summarize(outcomes, os.Stdout)
			if pdfReport != "" {
				if err := eval.WritePDFReport(outcomes, pdfReport); err != nil {
					log.Warn().Err(err).Str("path", pdfReport).Msg("pdf report failed")
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d case(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&matrixPath, "matrix", "eval-matrix.yaml", "path to the YAML case matrix")
	cmd.Flags().StringVar(&pdfReport, "pdf-report", "", "optional path for a PDF report of the run")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the on-disk fetch cache",
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			if cfg.CacheDir == "" {
				return fmt.Errorf("WEBPIPE_CACHE_DIR is not set")
			}
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				return err
			}
			log.Info().Str("dir", cfg.CacheDir).Msg("cache cleared")
			return nil
		},
	}

	var maxAge time.Duration
	var maxBytes int64
	var maxCount int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Evict cached records by age and/or size limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			if cfg.CacheDir == "" {
				return fmt.Errorf("WEBPIPE_CACHE_DIR is not set")
			}
			removed := 0
			if maxAge > 0 {
				n, err := cache.PurgeByAge(cfg.CacheDir, maxAge)
				if err != nil {
					return err
				}
				removed += n
			}
			if maxBytes > 0 || maxCount > 0 {
				n, err := cache.EnforceLimits(cfg.CacheDir, maxBytes, maxCount)
				if err != nil {
					return err
				}
				removed += n
			}
			log.Info().Int("removed", removed).Str("dir", cfg.CacheDir).Msg("cache purge complete")
			return nil
		},
	}
	purge.Flags().DurationVar(&maxAge, "max-age", 0, "evict records fetched longer ago than this (e.g. 720h)")
	purge.Flags().Int64Var(&maxBytes, "max-bytes", 0, "evict oldest records until total body bytes fit")
	purge.Flags().IntVar(&maxCount, "max-count", 0, "evict oldest records until this many remain")

	cmd.AddCommand(clear, purge)
	return cmd
}
