package commands

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/generator"
)

// NewEntitiesCommand creates the entities command
func NewEntitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the supported entity kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, "entities")
			if err != nil {
				return err
			}
			return s.finish(s.out.Print(kindTable(listKinds())))
		},
	}
}

type kindInfo struct {
	Name    string `json:"name" yaml:"name"`
	Member  string `json:"member" yaml:"member"`
	File    string `json:"file" yaml:"file"`
	Default bool   `json:"default" yaml:"default"`
}

func listKinds() []kindInfo {
	defaults := generator.DefaultKinds()
	var kinds []kindInfo
	for _, k := range entity.All() {
		kinds = append(kinds, kindInfo{
			Name:    k.String(),
			Member:  k.Member(),
			File:    k.FileName(),
			Default: slices.Contains(defaults, k),
		})
	}
	return kinds
}

type kindTable []kindInfo

func (k kindTable) Headers() []string {
	return []string{"ENTITY", "DUMP MEMBER", "SAMPLE FILE", "DEFAULT"}
}

func (k kindTable) Rows() [][]string {
	rows := make([][]string, len(k))
	for i, info := range k {
		def := ""
		if info.Default {
			def = "yes"
		}
		rows[i] = []string{info.Name, info.Member, info.File, def}
	}
	return rows
}
