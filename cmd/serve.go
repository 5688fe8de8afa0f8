package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/finai-cli/internal/archive"
	cfgpkg "github.com/KaramelBytes/finai-cli/internal/config"
	"github.com/KaramelBytes/finai-cli/internal/server"
)

var (
	serveAddr       string
	serveProvider   string
	serveOllamaHost string
	serveNoArchive  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report pipeline over HTTP",
	Example: `  finai serve --addr :8000
  curl -F file=@sales.csv http://localhost:8000/api/reports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if !debug {
			gin.SetMode(gin.ReleaseMode)
		}
		ro := runtimeOptions{ProviderFlag: serveProvider, OllamaHost: serveOllamaHost}
		// Fail fast on a bad provider before accepting traffic.
		if _, _, err := buildRuntime(cfg, ro); err != nil {
			return err
		}
		factory := func(model string) (server.Pipeline, error) {
			gen, _, _, err := newGenerator(cfg, ro, model)
			if err != nil {
				return nil, err
			}
			return gen, nil
		}
		var store *archive.Store
		if !serveNoArchive {
			store = archive.New(cfg.ReportsDir)
		}
		srv := server.New(factory, store, server.Options{
			MaxConcurrent: cfg.MaxConcurrentReports,
			MaxUploadMB:   cfg.MaxUploadMB,
			CORSOrigins:   cfg.CORSOrigins,
		}, logger)

		addr := serveAddr
		if addr == "" {
			addr = cfg.HTTPAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (Ctrl+C to stop)\n", addr)
		return srv.Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default http_addr from config)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "provider: openrouter | openai | gemini | ollama")
	serveCmd.Flags().StringVar(&serveOllamaHost, "ollama-host", "", "Ollama host URL")
	serveCmd.Flags().BoolVar(&serveNoArchive, "no-archive", false, "do not store generated reports")
}
