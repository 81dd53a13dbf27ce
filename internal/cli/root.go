// Package cli implements welcomectl, the operator tool for a project's
// welcome documents.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/docsync"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/version"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/xerrors"
)

// errNoDocument makes show exit non-zero without printing an error twice.
var errNoDocument = errors.New("no markdown document found")

// deps are the outside-world constructors, swapped in tests.
type deps struct {
	newSyncer   func(ctx context.Context, opts docsync.Options) (*docsync.Syncer, error)
	newVerifier func(ctx context.Context, keyARN string) (cryptoutil.Verifier, error)
}

func defaultDeps() deps {
	return deps{
		newSyncer: docsync.New,
		newVerifier: func(ctx context.Context, keyARN string) (cryptoutil.Verifier, error) {
			awsCfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
			return cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), keyARN), nil
		},
	}
}

func Execute() {
	if err := execute(context.Background(), newRootCmd(defaultDeps())); err != nil {
		os.Exit(1)
	}
}

// execute runs cmd and prints any error other than errNoDocument, which
// only sets the exit status.
func execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errNoDocument) {
		cmd.PrintErrln("Error:", err)
	}
	return err
}

func newRootCmd(d deps) *cobra.Command {
	var (
		logLevel string
		logJSON  bool
	)

	cmd := &cobra.Command{
		Use:           "welcomectl",
		Short:         "Manage a project's localized welcome documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			vi := version.Get()
			L, err := log.New(log.Options{
				App:        "welcomectl",
				Version:    vi.Version,
				Commit:     vi.Commit,
				Level:      lvl,
				JsonFormat: logJSON,
				Writer:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			cmd.SetContext(log.WithContext(cmd.Context(), L))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	cmd.AddCommand(initCmd(), showCmd(), syncCmd(d), versionCmd())
	return cmd
}
