package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/docsync"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
)

func syncCmd(d deps) *cobra.Command {
	var (
		opts    docsync.Options
		keyARN  string
		release string
	)

	c := &cobra.Command{
		Use:   "sync",
		Short: "Install the published documentation release into the project root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts.Logger = log.FromContext(ctx)
			if keyARN != "" {
				v, err := d.newVerifier(ctx, keyARN)
				if err != nil {
					return err
				}
				opts.Verifier = v
			}

			s, err := d.newSyncer(ctx, opts)
			if err != nil {
				return err
			}
			var res docsync.Result
			if release != "" {
				res, err = s.SyncRelease(ctx, release)
			} else {
				res, err = s.Sync(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "release %s: %d files\n", res.Release, len(res.Files))
			for _, f := range res.Files {
				fmt.Fprintln(cmd.OutOrStdout(), " ", f)
			}
			return nil
		},
	}
	c.Flags().StringVarP(&opts.Root, "root", "r", ".", "project root")
	c.Flags().StringVar(&opts.Bucket, "bucket", "", "S3 bucket holding releases")
	c.Flags().StringVar(&opts.Prefix, "prefix", "apps/linnemanlabs-welcome/docs/releases", "S3 key prefix")
	c.Flags().StringVar(&opts.SSMParam, "ssm-param", "/app/linnemanlabs-welcome/docs/stable/release/id", "SSM parameter with the current release id")
	c.Flags().StringVar(&keyARN, "signing-key-arn", "", "KMS key that signs manifests; makes signatures mandatory")
	c.Flags().StringVar(&release, "release", "", "install this release instead of the one in SSM")
	_ = c.MarkFlagRequired("bucket")
	return c
}
