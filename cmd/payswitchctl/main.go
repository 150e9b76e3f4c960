package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payswitchctl",
		Short:         "Operator tooling for the merchant account rotation service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(
		accountsCmd(),
		rotationCmd(),
		resetCmd(),
		tokenCmd(),
		migrateCmd(),
	)
	return root
}
