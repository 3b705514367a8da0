// Package commands implements the sandsync command line.
package commands

import (
	"fmt"
	"os"

	"github.com/AnishMulay/sandsync/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sandsync",
	Short: "sandsync - a single-server file store with mirrored client directories",
	Long: `sandsync stores whole files on one server and keeps client mount
directories in step with it. Clients take a write lock before uploading,
and every client is told when the server's file set changes.

Environment variables override the config file. Format:
SANDSYNC_<SECTION>_<KEY>, for example SANDSYNC_CLIENT_SERVER=host:50051.

Use "sandsync [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: "+config.DefaultConfigPath()+")")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(lockCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the --config flag or the default location.
func GetConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	path := GetConfigFile()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w\n\nCreate one with: sandsync init --config %s", err, path)
	}
	return cfg, nil
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
