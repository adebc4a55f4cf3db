package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/search"
	"github.com/kozaktomas/face-finder/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve <index>",
	Short: "Serve face searches over HTTP",
	Long: `Load a face index and answer searches over HTTP.

  POST /api/v1/search   multipart form: image, threshold, optional k
  GET  /api/v1/stats    index statistics
  GET  /api/v1/health   health check

The index is loaded once; rebuild and restart to pick up new images.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default: WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default: WEB_HOST or 0.0.0.0)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	b, err := loadBundle(args[0], logger)
	if err != nil {
		return err
	}
	stats := b.Stats()
	fmt.Printf("Loaded face index %s with %d faces from %d images\n", b.Dir, stats.Vectors, stats.ImagesWithFaces)

	searcher := search.NewSearcher(newProvider(cfg, logger),
		search.WithNeighbors(cfg.Search.Neighbors),
		search.WithLogger(logger))
	server := web.NewServer(cfg, searcher, b, logger)

	ctx, stop := signalContext()
	defer stop()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Serving face search on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
