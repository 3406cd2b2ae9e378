// Package samplefile reads and writes the per-kind MBID sample files.
//
// A sample file is plain text with one identifier per line, no header and
// no trailing metadata. Files live in a single directory and are named after
// their entity kind.
package samplefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbtestgen/mbtestgen/pkg/entity"
)

// ErrMissing is returned when a kind's sample file does not exist
var ErrMissing = errors.New("sample file missing")

// DefaultDir is the sample directory used when none is configured
const DefaultDir = "mbids"

// NoticeFile is the name of the attribution notice written next to the samples
const NoticeFile = "README"

// Notice is the attribution and license text for the sampled identifiers
const Notice = `The contents of this file are a random sample of MBIDs of the MusicBrainz entities.
Source of the original dataset:
    https://musicbrainz.org/doc/MusicBrainz_Database
As the relevant data was released under the CC0 license, which you can find at:
    https://creativecommons.org/publicdomain/zero/1.0/
the list of MBIDs is also licensed as CC0.
`

// Store is a directory of sample files
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{Dir: dir}
}

// Path returns the sample file path for kind
func (s *Store) Path(kind entity.Kind) string {
	return filepath.Join(s.Dir, kind.FileName())
}

// Exists reports whether the store directory is present
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Dir)
	return err == nil && info.IsDir()
}

// Init creates the store directory if it does not exist
func (s *Store) Init() error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create sample directory: %w", err)
	}
	return nil
}

// WriteNotice writes the attribution notice into the store directory
func (s *Store) WriteNotice() error {
	if err := s.Init(); err != nil {
		return err
	}
	path := filepath.Join(s.Dir, NoticeFile)
	if err := os.WriteFile(path, []byte(Notice), 0644); err != nil {
		return fmt.Errorf("failed to write notice: %w", err)
	}
	return nil
}

// Write replaces kind's sample file with ids, one per line
func (s *Store) Write(kind entity.Kind, ids []string) error {
	if err := s.Init(); err != nil {
		return err
	}

	f, err := os.Create(s.Path(kind))
	if err != nil {
		return fmt.Errorf("failed to create sample file for %s: %w", kind, err)
	}

	if err := WriteLines(f, ids); err != nil {
		f.Close()
		return fmt.Errorf("failed to write sample file for %s: %w", kind, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close sample file for %s: %w", kind, err)
	}
	return nil
}

// Load returns the identifiers stored for kind
func (s *Store) Load(kind entity.Kind) ([]string, error) {
	path := s.Path(kind)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrMissing, kind, path)
		}
		return nil, fmt.Errorf("failed to open sample file for %s: %w", kind, err)
	}
	defer f.Close()

	ids, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample file for %s: %w", kind, err)
	}
	return ids, nil
}

// WriteLines writes each id followed by a newline
func WriteLines(w io.Writer, ids []string) error {
	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := bw.WriteString(id); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadLines returns the trimmed, non-empty lines of r
func ReadLines(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
