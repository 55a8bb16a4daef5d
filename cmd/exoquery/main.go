/*-------------------------------------------------------------------------
 *
 * exoquery - Command Line Interface
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"exoquery/internal/config"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitRetrieval   = 3
	exitModelOutput = 4
)

var (
	configFile        string
	catalogPath       string
	instrumentsPath   string
	textForm          string
	snapshotPath      string
	embeddingProvider string
	embeddingModel    string
	llmProvider       string
	llmModel          string
	promptDir         string
	cacheBackend      string
	logLevel          string
)

var rootCmd = &cobra.Command{
	Use:   "exoquery",
	Short: "exoquery - Turn exoplanet questions into archive queries",
	Long: `exoquery maps a natural language question about exoplanets onto the
columns of the exoplanet archive and asks a language model to write the
matching archive query.

Build the column index once with "exoquery index build", then use "ask",
"batch" or "interactive" to generate queries.`,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", config.GetDefaultConfigPath(),
		"Path to configuration file (YAML, or TOML with a .toml extension)")
	flags.StringVar(&catalogPath, "catalog", "",
		"Path to the column description CSV")
	flags.StringVar(&instrumentsPath, "instruments", "",
		"Path to the instrument list (one name per line)")
	flags.StringVar(&textForm, "text-form", "",
		"Text embedded per column: name or description")
	flags.StringVar(&snapshotPath, "snapshot", "",
		"Index snapshot path (local file or s3://bucket/key)")
	flags.StringVar(&embeddingProvider, "embedding-provider", "",
		"Embedding provider: ollama, openai or voyage")
	flags.StringVar(&embeddingModel, "embedding-model", "",
		"Embedding model name")
	flags.StringVar(&llmProvider, "llm-provider", "",
		"Language model provider: ollama, anthropic or openai")
	flags.StringVar(&llmModel, "llm-model", "",
		"Language model name")
	flags.StringVar(&promptDir, "prompt-dir", "",
		"Directory of prompt template overrides")
	flags.StringVar(&cacheBackend, "cache", "",
		"Result cache: none, memory or redis")
	flags.StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error")

	rootCmd.AddCommand(indexCmd, searchCmd, askCmd, batchCmd, interactiveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode separates failures of the index from failures of the model so
// scripts can tell them apart
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case qerrors.IsIndexError(err):
		return exitRetrieval
	case qerrors.IsModelError(err):
		return exitModelOutput
	case errors.Is(err, qerrors.ErrInvalidArgument):
		return exitUsage
	default:
		return exitFailure
	}
}

// loadSettings loads the configuration with the flags the user set on the
// command line taking priority
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	// Flags have been parsed; runtime errors should not print usage
	cmd.SilenceUsage = true

	changed := cmd.Flags().Changed
	flags := config.CLIFlags{
		ConfigFileSet: changed("config"),
		ConfigFile:    configFile,

		CatalogPath:        catalogPath,
		CatalogPathSet:     changed("catalog"),
		InstrumentsPath:    instrumentsPath,
		InstrumentsPathSet: changed("instruments"),
		TextForm:           textForm,
		TextFormSet:        changed("text-form"),

		SnapshotPath:    snapshotPath,
		SnapshotPathSet: changed("snapshot"),

		EmbeddingProvider:    embeddingProvider,
		EmbeddingProviderSet: changed("embedding-provider"),
		EmbeddingModel:       embeddingModel,
		EmbeddingModelSet:    changed("embedding-model"),

		LLMProvider:    llmProvider,
		LLMProviderSet: changed("llm-provider"),
		LLMModel:       llmModel,
		LLMModelSet:    changed("llm-model"),

		PromptDir:    promptDir,
		PromptDirSet: changed("prompt-dir"),

		CacheBackend:    cacheBackend,
		CacheBackendSet: changed("cache"),

		LogLevel:    logLevel,
		LogLevelSet: changed("log-level"),
	}

	if f := cmd.Flags().Lookup("top-k"); f != nil && f.Changed {
		flags.K = topK
		flags.KSet = true
	}
	if f := cmd.Flags().Lookup("summary"); f != nil && f.Changed {
		flags.IncludeSummary = includeSummary
		flags.IncludeSummarySet = true
	}
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		flags.BatchConcurrency = batchConcurrency
		flags.BatchConcurrencySet = true
	}

	cfg, err := config.LoadConfig(configFile, flags)
	if err != nil {
		return nil, qerrors.InvalidArgument(fmt.Sprintf("failed to load configuration: %v", err))
	}
	cfg.ApplyLogging()
	logging.Debug("config_loaded", "config", configFile, "snapshot", cfg.Index.SnapshotPath,
		"llm_provider", cfg.LLM.Provider, "llm_model", cfg.LLM.Model)
	return cfg, nil
}
