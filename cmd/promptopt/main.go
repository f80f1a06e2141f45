package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/use-agent/promptopt/api/handler"
	"github.com/use-agent/promptopt/config"
)

var (
	successIcon = color.New(color.FgGreen).Sprint("✓")
	errorIcon   = color.New(color.FgRed).Sprint("✗")

	bold = color.New(color.Bold).SprintFunc()
	info = color.New(color.FgCyan).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
)

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:   "promptopt",
		Short: "Distill, translate and measure prompts",
		Long: `promptopt shortens prompts with an LLM, optionally translates them into a
more token-efficient language, and reports the tokens, money, energy and
emissions saved.`,
		Version:       handler.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newOptimizeCmd())
	root.AddCommand(newCountCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorIcon, err.Error())
		os.Exit(1)
	}
}
