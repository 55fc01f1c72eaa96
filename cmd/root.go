package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-sunbird/sunbird-lock-service/cmd/lock"
	"github.com/project-sunbird/sunbird-lock-service/cmd/util"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sblock",
		Short: "advisory lock service for collaborative editing",
		Long: fmt.Sprintf(`sunbird-lock-service (v%s)

An advisory lock manager for collaborative editing. Locks are leased,
keyed per resource, and coordinated with the content system's version
keys so concurrent editors are fenced off.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of the lock service",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sunbird-lock-service v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use for stored lock records (json, gob)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
