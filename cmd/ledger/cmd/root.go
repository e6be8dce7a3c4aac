package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"household-ledger/cmd/ledger/config"
)

var (
	cfgFile     string
	verbose     bool
	household   string
	databaseURL string

	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Household finance ledger",
	Long: `Ledger imports bank, card and payment-app statements into a household
ledger, flags duplicate rows and builds a review queue that pairs card
charges with the BIT, Paybox and PayPal payments behind them.

Supported inputs are CSV, Excel (.xlsx/.xls), PDF and screenshots
(.png/.jpg/.webp, read by the classifier when classifier.api_key is set).

Examples:
  ledger migrate --database-url postgres://localhost/ledger
  ledger ingest --household family card-march.xlsx bit-march.png
  ledger ingest --household family --dry-run statement.pdf
  ledger reconcile --household family --start-date 2026-03-01 --format json
  ledger merge p2p --household family <card-id> <app-id>`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file merged over the built-in defaults (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&household, "household", "", "household the command operates on")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("household", rootCmd.PersistentFlags().Lookup("household"))
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))
}

// initConfig reads the defaults, the config file and LEDGER_* variables.
func initConfig() {
	if err := config.Load(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %s\n", err)
		os.Exit(4)
	}

	if cfgFile != "" && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
