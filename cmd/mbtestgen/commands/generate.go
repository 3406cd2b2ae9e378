package commands

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mbtestgen/mbtestgen/pkg/bundle"
	"github.com/mbtestgen/mbtestgen/pkg/generator"
	"github.com/mbtestgen/mbtestgen/pkg/render"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a Rust test file from sampled MBIDs",
		Long: `Picks --num distinct MBIDs per entity kind from the sample directory and
writes a Rust integration test that looks each of them up. When the sample
directory is missing it is downloaded first unless --no-fetch is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd)
		},
	}

	cmd.Flags().StringP("entities", "e", "", "Comma separated entity kinds (default all but Release)")
	cmd.Flags().IntP("num", "n", generator.DefaultCount, "Number of test cases per entity kind")
	cmd.Flags().String("dir", samplefile.DefaultDir, "Sample directory")
	cmd.Flags().StringP("out", "o", generator.DefaultOutput, "Output file")
	cmd.Flags().String("template", "", "YAML file overriding preamble, body or trailer templates")
	cmd.Flags().String("bundle-url", bundle.DefaultURL, "Where to download the sample bundle from")
	cmd.Flags().String("bundle-sha256", "", "Expected SHA-256 of the bundle (hex)")
	cmd.Flags().Bool("no-fetch", false, "Fail instead of downloading missing samples")

	return cmd
}

func runGenerate(cmd *cobra.Command) error {
	s, err := newSession(cmd, "generate")
	if err != nil {
		return err
	}

	report, err := generate(cmd, s)
	if err == nil {
		err = s.out.Print(reportTable{*report})
	}
	return s.finish(err)
}

func generate(cmd *cobra.Command, s *session) (*generator.Report, error) {
	kinds, err := s.cfg.Kinds()
	if err != nil {
		return nil, err
	}
	req := generator.Request{Kinds: kinds, Count: s.cfg.Num}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tmpl := render.Default()
	if s.cfg.Template != "" {
		tmpl, err = render.Load(s.cfg.Template)
		if err != nil {
			return nil, err
		}
	}

	cfg := generator.Config{
		Store:    samplefile.NewStore(s.cfg.Dir),
		Template: tmpl,
		Rand:     s.rand(),
		Logger:   s.base,
		Metrics:  s.metrics,
	}
	if noFetch, _ := cmd.Flags().GetBool("no-fetch"); !noFetch {
		cfg.Fetcher = newFetcher(cmd, s)
	}

	gen, err := generator.New(cfg)
	if err != nil {
		return nil, err
	}
	return gen.Generate(s.ctx, req, s.cfg.Out)
}

func newFetcher(cmd *cobra.Command, s *session) *bundle.Fetcher {
	return &bundle.Fetcher{
		URL:      s.cfg.BundleURL,
		SHA256:   s.cfg.BundleSHA,
		Dir:      s.cfg.Dir,
		Client:   http.DefaultClient,
		Progress: cmd.ErrOrStderr(),
		Logger:   s.base,
		Metrics:  s.metrics,
	}
}

type reportTable struct {
	generator.Report `yaml:",inline"`
}

func (r reportTable) Headers() []string {
	return []string{"ENTITY", "AVAILABLE", "SELECTED"}
}

func (r reportTable) Rows() [][]string {
	rows := make([][]string, 0, len(r.Kinds)+1)
	for _, k := range r.Kinds {
		rows = append(rows, []string{k.Kind.String(), strconv.Itoa(k.Available), strconv.Itoa(k.Selected)})
	}
	rows = append(rows, []string{"total (" + r.Output + ")", "", strconv.Itoa(r.Cases)})
	return rows
}
