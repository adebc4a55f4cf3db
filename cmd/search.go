package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <index> <image> <threshold>",
	Short: "Find the images that contain the faces of a query image",
	Long: `Detect the faces in a query image and look up the most similar faces in
a face index built with 'build'.

Similarity is 1/(1+d) where d is the squared distance between two face
embeddings, so 1 means identical. Every indexed image with a face scoring
at least <threshold> against any query face is listed once and copied to
results/<image name>/ (see --results).`,
	Args: cobra.ExactArgs(3),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("results", "", "Root directory for copied matches (default: RESULTS_DIR or ./results)")
	searchCmd.Flags().Int("k", 0, "Nearest faces inspected per query face (default: SEARCH_NEIGHBORS or 200)")
	searchCmd.Flags().Bool("no-copy", false, "Only list matches, do not copy them")
}

func runSearch(cmd *cobra.Command, args []string) error {
	bundleDir, queryPath := args[0], args[1]

	threshold, err := search.ParseThreshold(args[2])
	if err != nil {
		return err
	}

	if _, err := os.Stat(queryPath); err != nil {
		return fmt.Errorf("query image: %w", err)
	}

	cfg := config.Load()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	b, err := loadBundle(bundleDir, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	searcher := search.NewSearcher(newProvider(cfg, logger),
		search.WithNeighbors(cfg.Search.Neighbors),
		search.WithLogger(logger))

	matches, err := searcher.Search(ctx, b, queryPath, threshold, mustGetInt(cmd, "k"))
	if errors.Is(err, search.ErrNoFaceDetected) {
		return fmt.Errorf("%s: %w", queryPath, search.ErrNoFaceDetected)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(matches) == 0 {
		fmt.Printf("No images match %s at threshold %g\n", queryPath, threshold)
		return nil
	}

	fmt.Printf("Found %d matching images:\n", len(matches))
	for _, m := range matches {
		fmt.Printf("  %.4f  %s\n", m.Score, m.SourcePath)
	}

	if mustGetBool(cmd, "no-copy") {
		return nil
	}

	resultsRoot := mustGetString(cmd, "results")
	if resultsRoot == "" {
		resultsRoot = cfg.Search.ResultsDir
	}
	dest := search.ResultsDir(resultsRoot, queryPath)
	copied, failures, err := search.CopyMatches(matches, dest)
	if err != nil {
		return err
	}

	fmt.Printf("\nCopied %d of %d images to %s\n", len(copied), len(matches), dest)
	if len(failures) > 0 {
		fmt.Printf("Failed to copy %d images:\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  %s: %v\n", f.SourcePath, f.Err)
		}
	}
	return nil
}
