/*-------------------------------------------------------------------------
 *
 * exoquery - Index Commands
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"exoquery/internal/catalog"
	"exoquery/internal/colindex"
	"exoquery/internal/embedding"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/snapshot"
	"exoquery/internal/storage"
)

var (
	uploadTo string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect the column index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the column catalog and write an index snapshot",
	Long: `build loads the column description CSV, embeds every column with the
configured embedding provider and writes the vectors to a snapshot file.

When the snapshot path is an s3:// location the snapshot is written locally
first and then uploaded. --upload copies a local snapshot to object storage
as well.`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the metadata of an index snapshot",
	Args:  cobra.NoArgs,
	RunE:  runIndexInfo,
}

func init() {
	indexBuildCmd.Flags().StringVar(&uploadTo, "upload", "",
		"Also upload the snapshot to s3://bucket/key")
	indexCmd.AddCommand(indexBuildCmd, indexInfoCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if cfg.Catalog.CSVPath == "" {
		return qerrors.InvalidArgument("no column catalog configured (use --catalog or catalog.csv_path)")
	}

	// Resolve where the snapshot goes before doing any embedding work
	target := cfg.Index.SnapshotPath
	loc, remote, err := storage.ParseLocation(target)
	if err != nil {
		return qerrors.InvalidArgument(err.Error())
	}
	localPath := target
	if remote {
		if localPath, err = snapshotCachePath(cfg, loc); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	var uploadLoc storage.Location
	if uploadTo != "" {
		var isS3 bool
		uploadLoc, isS3, err = storage.ParseLocation(uploadTo)
		if err != nil {
			return qerrors.InvalidArgument(err.Error())
		}
		if !isS3 {
			return qerrors.InvalidArgument(fmt.Sprintf("--upload expects an s3:// location, got %q", uploadTo))
		}
	} else if remote {
		uploadLoc = loc
	}

	fmt.Printf("Loading catalog from: %s\n", cfg.Catalog.CSVPath)
	cat, err := catalog.LoadCSVFile(cfg.Catalog.CSVPath)
	if err != nil {
		return qerrors.InvalidArgument(fmt.Sprintf("failed to load catalog: %v", err))
	}
	instruments, err := loadInstruments(cfg)
	if err != nil {
		return err
	}

	enc, err := embedding.NewProvider(cfg.EmbeddingProviderConfig())
	if err != nil {
		return qerrors.IndexUnavailable("failed to create embedding provider", err)
	}

	fmt.Printf("Embedding %d columns with %s/%s (%s form)\n",
		cat.Len(), enc.ProviderName(), enc.ModelName(), cfg.TextForm())
	start := time.Now()
	index, err := colindex.Build(ctx, cat, enc, colindex.Options{
		TextForm:         cfg.TextForm(),
		SchemaSource:     cfg.Catalog.CSVPath,
		Instruments:      instruments,
		BuildConcurrency: cfg.Index.BuildConcurrency,
	})
	if err != nil {
		return err
	}

	if err := index.Persist(localPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %d columns (%d dimensions) to %s in %s\n",
		index.Len(), index.Dimensions(), localPath, time.Since(start).Round(time.Millisecond))

	if uploadLoc.Bucket == "" {
		return nil
	}
	store, err := storage.NewS3Storage(ctx, uploadLoc.Bucket, cfg.Index.S3)
	if err != nil {
		return err
	}
	if err := store.Upload(ctx, localPath, uploadLoc.Key); err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	fmt.Printf("Uploaded snapshot to %s\n", uploadLoc)
	return nil
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	path, err := localSnapshot(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	meta, err := snapshot.ReadMeta(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Snapshot:\t%s\n", path)
	fmt.Fprintf(w, "Format version:\t%d\n", meta.FormatVersion)
	fmt.Fprintf(w, "Schema source:\t%s\n", meta.SchemaSource)
	fmt.Fprintf(w, "Text form:\t%s\n", meta.TextForm)
	fmt.Fprintf(w, "Columns:\t%d\n", meta.Count)
	fmt.Fprintf(w, "Dimensions:\t%d\n", meta.Dimensions)
	fmt.Fprintf(w, "Encoder:\t%s/%s\n", meta.EncoderProvider, meta.EncoderModel)
	if !meta.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:\t%s\n", meta.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
