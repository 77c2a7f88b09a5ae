package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/fsutil"
	"github.com/ethpandaops/artifactoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	uploadSubdirectory string
	uploadOutput       string
	uploadOutputFile   string
	uploadOutputOwner  string
)

var uploadCmd = &cobra.Command{
	Use:   "upload [flags] <path|glob>...",
	Short: "Upload files and print their public URLs",
	Long: `Upload files to the configured bucket under --subdirectory. Files whose
content already exists at the same key are skipped. Globs support "**".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadSubdirectory, "subdirectory", "",
		"Bucket subdirectory to upload under")
	uploadCmd.Flags().StringVarP(&uploadOutput, "output", "o", outputText,
		"Output format: text, json or yaml")
	uploadCmd.Flags().StringVar(&uploadOutputFile, "output-file", "",
		"Write the output to this file instead of stdout")
	uploadCmd.Flags().StringVar(&uploadOutputOwner, "output-owner", "",
		"Owner of --output-file as UID:GID")
}

func runUpload(cmd *cobra.Command, args []string) error {
	// Reject bad output settings before uploading anything.
	if _, err := renderArtifacts(uploadOutput, nil); err != nil {
		return err
	}

	owner, err := fsutil.ParseOwner(uploadOutputOwner)
	if err != nil {
		return fmt.Errorf("parsing --output-owner: %w", err)
	}

	cfg, err := loadConfig(cmd, (*config.Config).Validate)
	if err != nil {
		return err
	}

	paths, err := expandPaths(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	artifacts, err := uploadPaths(ctx, cfg, paths)
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}

	data, err := renderArtifacts(uploadOutput, artifacts)
	if err != nil {
		return err
	}

	if uploadOutputFile == "" {
		_, err := os.Stdout.Write(data)

		return err
	}

	if err := fsutil.WriteFile(uploadOutputFile, data, 0o644, owner); err != nil {
		return fmt.Errorf("writing %s: %w", uploadOutputFile, err)
	}

	log.WithField("path", uploadOutputFile).Info("Wrote upload output")

	return nil
}

func uploadPaths(ctx context.Context, cfg *config.Config, paths []string) ([]upload.Artifact, error) {
	store, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer stopLedger(store)

	// A nil ledger.Store must not become a non-nil upload.Recorder.
	var recorder upload.Recorder
	if store != nil {
		recorder = store
	}

	uploader, err := upload.NewUploader(log, &cfg.Storage, recorder)
	if err != nil {
		return nil, fmt.Errorf("creating uploader: %w", err)
	}

	artifacts, err := uploader.Upload(ctx, uploadSubdirectory, paths)
	if err != nil {
		return nil, err
	}

	var deduplicated int

	for _, a := range artifacts {
		if a.Deduplicated {
			deduplicated++
		}
	}

	log.WithFields(logrus.Fields{
		"files":        len(artifacts),
		"deduplicated": deduplicated,
	}).Info("Upload completed successfully")

	return artifacts, nil
}
