package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auditctl",
		Short:         "Offline tooling for the compliance attestation engine",
		Long:          `auditctl verifies exported audit chain ranges and lints policy documents without contacting a running engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newVerifyChainCmd(), newLintPoliciesCmd())
	return root
}

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err.Error())
		os.Exit(1)
	}
}

func printHeader(w io.Writer, msg string) {
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(w, "\n%s\n%s\n", msg, cyan(strings.Repeat("=", len(msg))))
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s  %s\n", color.GreenString("✔"), msg)
}

func printInfo(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s  %s\n", color.BlueString("ℹ"), msg)
}

func printError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s  %s\n", color.RedString("✖"), msg)
}
