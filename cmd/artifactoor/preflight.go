package main

import (
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/upload"
	"github.com/spf13/cobra"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Verify storage credentials and capabilities",
	Long: `Authorize against the provider once and check that the key can list
and write files in the bucket. Nothing is uploaded.`,
	Args: cobra.NoArgs,
	RunE: runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, func(c *config.Config) error {
		return c.Storage.Validate()
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	uploader, err := upload.NewUploader(log, &cfg.Storage, nil)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	fmt.Println("ok")

	return nil
}
