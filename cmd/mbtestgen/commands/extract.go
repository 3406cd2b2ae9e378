package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
	"github.com/mbtestgen/mbtestgen/pkg/sampler"
)

// NewExtractCommand creates the extract command
func NewExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract ARCHIVE",
		Short: "Sample MBIDs from a MusicBrainz dump",
		Long: `Reads a MusicBrainz database dump (mbdump.tar.bz2, plain tar, gzip or zstd)
in a single pass and writes up to --limit uniformly sampled MBIDs per entity
kind into the sample directory, one file per kind.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0])
		},
	}

	cmd.Flags().String("dir", samplefile.DefaultDir, "Directory to write sample files to")
	cmd.Flags().Int("limit", sampler.DefaultLimit, "Maximum number of MBIDs kept per entity kind")

	return cmd
}

func runExtract(cmd *cobra.Command, archivePath string) error {
	s, err := newSession(cmd, "extract")
	if err != nil {
		return err
	}

	results, err := extract(s, archivePath)
	if len(results) > 0 {
		if perr := s.out.Print(resultTable(results)); perr != nil && err == nil {
			err = perr
		}
	}
	return s.finish(err)
}

func extract(s *session, archivePath string) ([]sampler.Result, error) {
	smp, err := sampler.New(sampler.Config{
		Store:   samplefile.NewStore(s.cfg.Dir),
		Limit:   s.cfg.Limit,
		Kinds:   entity.All(),
		Rand:    s.rand(),
		Logger:  s.base,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := smp.Extract(s.ctx, archivePath)
	s.metrics.PhaseDurationSeconds.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("Extraction incomplete", zap.Int("kinds_written", len(results)), zap.Error(err))
		return results, fmt.Errorf("extract %s: %w", archivePath, err)
	}
	return results, nil
}

type resultTable []sampler.Result

func (r resultTable) Headers() []string {
	return []string{"ENTITY", "MEMBER", "RECORDS", "SKIPPED", "SAMPLED", "FILE"}
}

func (r resultTable) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, res := range r {
		rows = append(rows, []string{
			res.Kind.String(),
			res.Member,
			strconv.FormatInt(res.Records, 10),
			strconv.FormatInt(res.Skipped, 10),
			strconv.Itoa(res.Sampled),
			res.Path,
		})
	}
	return rows
}
