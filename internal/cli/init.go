package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/markdown"
)

func initCmd() *cobra.Command {
	var root string

	c := &cobra.Command{
		Use:   "init",
		Short: "Write the default chainlit.md if the project has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r := markdown.New(markdown.Options{Root: root, Logger: log.FromContext(ctx)})
			created, err := r.Init(ctx)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", r.DefaultPath())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "kept existing %s\n", r.DefaultPath())
			}
			return nil
		},
	}
	c.Flags().StringVarP(&root, "root", "r", ".", "project root")
	return c
}
