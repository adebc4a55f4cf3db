package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/indexer"
	"github.com/kozaktomas/face-finder/internal/watch"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var buildCmd = &cobra.Command{
	Use:   "build <folder>",
	Short: "Index the faces of every image in a folder",
	Long: `Walk a folder recursively and index the faces of every jpg, jpeg, png and
bmp image that is not indexed yet.

The index is written to <folder>_index next to the folder unless --bundle
is given. It is checkpointed after every image, so the command can be
stopped with Ctrl+C at any time; running it again resumes with the
remaining images. Images without faces and images that cannot be decoded
are remembered and not retried.

With --watch the command keeps running after the first pass and indexes
new images as they appear in the folder.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().String("bundle", "", "Index directory (default: <folder>_index next to the folder)")
	buildCmd.Flags().Bool("watch", false, "Keep running and index new images as they appear")
	buildCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	folder := args[0]
	bundleDir := mustGetString(cmd, "bundle")
	if bundleDir == "" {
		bundleDir = bundle.DefaultDir(folder, cfg.Index.BundleSuffix)
	}

	ctx, stop := signalContext()
	defer stop()

	opts := []indexer.Option{
		indexer.WithLogger(logger),
		indexer.WithExtensions(cfg.Index.Extensions),
	}
	if !mustGetBool(cmd, "no-progress") {
		opts = append(opts, indexer.WithProgress(newBuildProgress().update))
	}
	builder := indexer.NewBuilder(newProvider(cfg, logger), opts...)

	report, err := buildOnce(ctx, builder, folder, bundleDir, logger)
	if err != nil {
		return err
	}
	if !mustGetBool(cmd, "watch") || report.Interrupted {
		return nil
	}

	w, err := watch.Open(folder, builder.IsImage,
		watch.WithDebounce(cfg.Index.WatchDebounce()),
		watch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", folder, err)
	}
	fmt.Printf("Watching %s for new images (press Ctrl+C to stop)\n", folder)
	return w.Run(ctx, func(ctx context.Context) error {
		_, err := buildOnce(ctx, builder, folder, bundleDir, logger)
		return err
	})
}

// buildOnce runs one incremental build session and prints its outcome.
// Only a failed session returns an error.
func buildOnce(ctx context.Context, builder *indexer.Builder, folder, bundleDir string, logger *zap.Logger) (*indexer.Report, error) {
	b, resumed, err := bundle.Open(bundleDir, bundle.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open face index: %w", err)
	}
	if resumed {
		fmt.Printf("Resuming face index %s (%d images already processed)\n", bundleDir, b.Progress.Len())
	} else {
		fmt.Printf("Creating face index %s\n", bundleDir)
	}

	report, err := builder.Build(ctx, folder, b)
	printBuildReport(report, folder, bundleDir, err)
	if err != nil {
		return report, fmt.Errorf("build failed: %w", err)
	}
	return report, nil
}

func printBuildReport(r *indexer.Report, folder, bundleDir string, err error) {
	switch r.Status() {
	case indexer.StatusNothingToDo:
		fmt.Printf("Nothing to do: all %d images in %s are already indexed\n", r.Considered, folder)
		return
	case indexer.StatusComplete:
		fmt.Printf("\nIndexing complete\n")
	case indexer.StatusInterrupted:
		fmt.Printf("\nIndexing interrupted, %d images left; run build again to resume\n", r.Remaining())
	case indexer.StatusFailed:
		fmt.Printf("\nIndexing failed: %v\n", err)
		fmt.Printf("Work up to the failing image is saved; run build again to resume\n")
	}

	fmt.Printf("  Images found:     %d\n", r.Considered)
	fmt.Printf("  Pending:          %d\n", r.Pending)
	fmt.Printf("  Processed:        %d\n", r.Processed)
	fmt.Printf("  Without faces:    %d", r.Skipped)
	if r.Unreadable > 0 {
		fmt.Printf(" (%d unreadable)", r.Unreadable)
	}
	fmt.Println()
	fmt.Printf("  Faces added:      %d\n", r.FacesAdded)
	fmt.Printf("  Index:            %s\n", bundleDir)
}

// buildProgress renders builder progress; a new bar starts with each session.
type buildProgress struct {
	bar *progressbar.ProgressBar
}

func newBuildProgress() *buildProgress {
	return &buildProgress{}
}

func (p *buildProgress) update(done, total int) {
	if done == 0 {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Detecting faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(constants.ProgressThrottle),
			progressbar.OptionFullWidth(),
		)
		return
	}
	if p.bar != nil {
		_ = p.bar.Set(done)
	}
}
