// Package render assembles the generated test source: a preamble, one body
// per test case and a trailer.
//
// Each part is a text/template. Values are inserted structurally, never by
// find-and-replace, so an identifier that happens to contain template or
// placeholder syntax is emitted verbatim. No escaping is applied.
package render

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Case is one (entity kind, identifier) pair rendered into a body
type Case struct {
	Entity   string
	MBID     string
	TestName string
}

// NewCase builds the template data for one test case
func NewCase(kind entity.Kind, mbid string) Case {
	return Case{
		Entity:   kind.String(),
		MBID:     mbid,
		TestName: kind.String() + "_" + strings.ReplaceAll(mbid, "-", ""),
	}
}

// Document is the data passed to the preamble and trailer
type Document struct {
	Entities []string
	Cases    []Case
}

// Source holds the raw text of the three template parts
type Source struct {
	Preamble string `yaml:"preamble"`
	Body     string `yaml:"body"`
	Trailer  string `yaml:"trailer"`
}

// Template is a parsed three-part template
type Template struct {
	preamble *template.Template
	body     *template.Template
	trailer  *template.Template
}

// DefaultSource returns the built-in Rust integration test template
func DefaultSource() Source {
	read := func(name string) string {
		data, err := defaultTemplates.ReadFile("templates/" + name)
		if err != nil {
			panic(fmt.Sprintf("render: embedded template %s: %v", name, err))
		}
		return string(data)
	}
	return Source{
		Preamble: read("preamble.rs.tmpl"),
		Body:     read("body.rs.tmpl"),
		Trailer:  read("trailer.rs.tmpl"),
	}
}

// Default returns the parsed built-in template
func Default() *Template {
	t, err := Parse(DefaultSource())
	if err != nil {
		panic(fmt.Sprintf("render: default template: %v", err))
	}
	return t
}

// Parse compiles the three parts of src
func Parse(src Source) (*Template, error) {
	parse := func(name, text string) (*template.Template, error) {
		t, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		return t, nil
	}

	preamble, err := parse("preamble", src.Preamble)
	if err != nil {
		return nil, err
	}
	body, err := parse("body", src.Body)
	if err != nil {
		return nil, err
	}
	trailer, err := parse("trailer", src.Trailer)
	if err != nil {
		return nil, err
	}

	return &Template{preamble: preamble, body: body, trailer: trailer}, nil
}

// Load reads a YAML file with optional preamble, body and trailer keys.
// Parts not present in the file keep their built-in text.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	src := DefaultSource()
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("failed to decode template file %s: %w", path, err)
	}
	return Parse(src)
}

// Render writes preamble, one body per case in order, and trailer to w
func (t *Template) Render(w io.Writer, cases []Case) error {
	bw := bufio.NewWriter(w)
	doc := Document{Entities: entitiesOf(cases), Cases: cases}

	if err := t.preamble.Execute(bw, doc); err != nil {
		return fmt.Errorf("failed to render preamble: %w", err)
	}
	for _, c := range cases {
		if err := t.body.Execute(bw, c); err != nil {
			return fmt.Errorf("failed to render %s %s: %w", c.Entity, c.MBID, err)
		}
	}
	if err := t.trailer.Execute(bw, doc); err != nil {
		return fmt.Errorf("failed to render trailer: %w", err)
	}
	return bw.Flush()
}

// entitiesOf returns the distinct entity names of cases in first-seen order
func entitiesOf(cases []Case) []string {
	var names []string
	seen := make(map[string]bool)
	for _, c := range cases {
		if !seen[c.Entity] {
			seen[c.Entity] = true
			names = append(names, c.Entity)
		}
	}
	return names
}
