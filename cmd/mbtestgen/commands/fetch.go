package commands

import (
	"github.com/spf13/cobra"

	"github.com/mbtestgen/mbtestgen/pkg/bundle"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
)

// NewFetchCommand creates the fetch command
func NewFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the prebuilt sample bundle",
		Long: `Downloads the published mbids.tar.gz bundle and unpacks it next to the
sample directory. Does nothing when the directory already exists unless
--force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd)
		},
	}

	cmd.Flags().String("dir", samplefile.DefaultDir, "Sample directory")
	cmd.Flags().String("bundle-url", bundle.DefaultURL, "Where to download the sample bundle from")
	cmd.Flags().String("bundle-sha256", "", "Expected SHA-256 of the bundle (hex)")
	cmd.Flags().Bool("force", false, "Download even if the sample directory exists")

	return cmd
}

func runFetch(cmd *cobra.Command) error {
	s, err := newSession(cmd, "fetch")
	if err != nil {
		return err
	}

	f := newFetcher(cmd, s)
	if force, _ := cmd.Flags().GetBool("force"); force {
		err = f.Fetch(s.ctx)
	} else {
		err = f.Ensure(s.ctx)
	}
	return s.finish(err)
}
