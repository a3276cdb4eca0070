package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/igvedmak/parkspeak/internal/config"
	logger "github.com/igvedmak/parkspeak/internal/logging"
	"github.com/igvedmak/parkspeak/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "parkspeak",
	Short: "Hearing screening backend for the parkspeak speech therapy app",
	Long: `parkspeak runs the adaptive digits-in-noise hearing screening.

Commands:
  serve     - HTTP API driving hearing tests for the mobile client
  migrate   - create or update the database schema
  simulate  - run screenings against a virtual listener`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root containing the config/ directory")
}

// bootstrap loads configuration and builds the rotating file logger.
func bootstrap() (*zap.Logger, error) {
	boot := logger.NewConsole(zapcore.InfoLevel)
	if err := config.Init(projectRoot, boot); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Init(projectRoot, config.Conf.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

func loadLanguages() (*models.LanguageCatalog, error) {
	path := config.Conf.Hearing.LanguagesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectRoot, path)
	}
	catalog, err := models.LoadLanguages(path)
	if err != nil {
		return nil, err
	}
	if def := config.Conf.Hearing.DefaultLanguage; def != "" {
		if _, ok := catalog.Lookup(def); ok {
			catalog.Default = def
		}
	}
	return catalog, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
