// Package cmd provides the Cobra commands for the filterkit CLI.
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/filterkit/cli/client"
	"github.com/fluxbase-eu/filterkit/cli/output"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	serverURL string
	timeout   time.Duration
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	apiClient *client.Client
	formatter *output.Formatter
)

const defaultServer = "http://localhost:8080"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "filterctl",
	Short: "filterctl - Query a filterkit server",
	Long: `filterctl lists the filter definitions a filterkit server exposes,
evaluates them against query data and validates definition files.

Get started:
  filterctl filters list                     Show available definitions
  filterctl filters eval users status=1      Filter the users definition
  filterctl definitions validate filters.yaml --sample

The server defaults to ` + defaultServer + `; set FILTERKIT_SERVER or --server to change it.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "",
		"filterkit server URL (default "+defaultServer+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second,
		"HTTP request timeout")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	// Bind environment variables
	viper.SetEnvPrefix("FILTERKIT")
	_ = viper.BindEnv("server") // FILTERKIT_SERVER
	_ = viper.BindEnv("debug")  // FILTERKIT_DEBUG

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(definitionsCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(healthCmd)
}

func initConfig() {
	viper.AutomaticEnv()
}

// initializeFormatter sets up output for commands that print results
func initializeFormatter(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()
	return nil
}

// initializeClient sets up the API client for commands that need it
func initializeClient(cmd *cobra.Command, args []string) error {
	if err := initializeFormatter(cmd, args); err != nil {
		return err
	}

	server := serverURL
	if server == "" {
		server = viper.GetString("server")
	}
	if server == "" {
		server = defaultServer
	}

	if viper.GetBool("debug") {
		debug = true
	}

	apiClient = client.NewClient(server,
		client.WithDebug(debug),
		client.WithTimeout(timeout),
	)
	apiClient.DebugWriter = cmd.ErrOrStderr()
	return nil
}
