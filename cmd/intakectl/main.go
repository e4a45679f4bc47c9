// Command intakectl is the operator CLI: it inspects the catalog, prices a
// selection, validates an intake file offline and mints admin tokens.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "intakectl",
		Short:         "Operator tools for the meal prep intake service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("catalog", os.Getenv("CATALOG_PATH"), "Catalog YAML file (defaults to the built-in catalog)")

	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}
