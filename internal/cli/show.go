package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/markdown"
)

func showCmd() *cobra.Command {
	var (
		root     string
		language string
		verbose  bool
	)

	c := &cobra.Command{
		Use:   "show",
		Short: "Print the welcome document a language resolves to",
		Long: "Print the welcome document for --language, falling back from\n" +
			"chainlit_<lang>.md to chainlit_<general>.md to chainlit.md.\n" +
			"Exits 1 when no document exists.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r := markdown.New(markdown.Options{Root: root, Logger: log.FromContext(ctx)})
			doc, ok, err := r.Get(ctx, language)
			if err != nil {
				return err
			}
			if !ok {
				if verbose {
					fmt.Fprintln(cmd.ErrOrStderr(), "no document: tried", candidateList(root, language))
				}
				return errNoDocument
			}
			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "tier=%s path=%s\n", doc.Tier, doc.Path)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), doc.Content)
			return err
		},
	}
	c.Flags().StringVarP(&root, "root", "r", ".", "project root")
	c.Flags().StringVarP(&language, "language", "l", "en-US", "language tag to resolve")
	c.Flags().BoolVarP(&verbose, "verbose", "v", false, "report the chosen file on stderr")
	return c
}

func candidateList(root, language string) []string {
	cands := markdown.Candidates(root, language)
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Path)
	}
	return out
}
