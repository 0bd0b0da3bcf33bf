package cmd

import (
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the build revision",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(Revision)
		},
	}
}
