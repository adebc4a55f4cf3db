package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-finder",
	Short: "Find every photo of a person in a large image folder",
	Long: `Face Finder indexes the faces found in a folder of images and answers
"which photos contain this person" queries against that index.

Faces are detected and embedded by an external embedding server
(EMBEDDING_URL). Indexing is incremental and can be interrupted at any
time with Ctrl+C; the next run resumes where the last one stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
