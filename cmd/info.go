package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <index>",
	Short: "Show what a face index contains",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().Bool("json", false, "Output as JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
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

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Face index %s\n", b.Dir)
	fmt.Printf("  Faces:             %d\n", stats.Vectors)
	fmt.Printf("  Embedding size:    %d\n", stats.Dim)
	fmt.Printf("  Images processed:  %d\n", stats.Processed)
	fmt.Printf("  Images with faces: %d\n", stats.ImagesWithFaces)
	return nil
}
