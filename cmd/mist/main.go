package main

import (
	"os"

	"github.com/mist-hpc/mist/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewMistCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewMistCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mist [flags] [options]",
		Short: "mist submits and tracks jobs on a job gateway.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdLogin())
	cmd.AddCommand(cli.NewCmdLogout())
	cmd.AddCommand(cli.NewCmdWhoAmI())
	cmd.AddCommand(cli.NewCmdSubmit())
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdCancel())

	return cmd
}
