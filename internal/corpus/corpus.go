// Package corpus loads and holds the knowledge text the relay retrieves from.
//
// The corpus is a plain text file; blank-line boundaries split it into
// fragments, the minimal retrievable units. It is loaded once at process
// start and immutable afterwards, so concurrent readers need no locking.
// Operators restart the process to pick up corpus edits.
package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mallhive/concierge/internal/log"
)

var (
	// ErrNotFound indicates the corpus file does not exist.
	ErrNotFound = errors.New("corpus file not found")

	// ErrEmpty indicates the corpus file exists but contains no data.
	// Callers must treat an empty corpus the same as a missing one.
	ErrEmpty = errors.New("corpus file is empty")
)

// Fragment is one blank-line-delimited block of corpus text.
// Index is the fragment's position in source order.
type Fragment struct {
	Index int
	Text  string
}

// Corpus is the loaded knowledge text. Immutable after Load.
type Corpus struct {
	// Text is the raw file content.
	Text string

	// Fragments are the non-empty blocks of Text in source order.
	Fragments []Fragment

	// Size is the byte size of the source file.
	Size int64
}

// Load reads the corpus from path and splits it into fragments.
// Returns ErrNotFound when the file is missing, ErrEmpty when it has no
// content, or a wrapped I/O error when it cannot be read.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}

	text := string(data)
	return &Corpus{
		Text:      text,
		Fragments: Split(text),
		Size:      int64(len(data)),
	}, nil
}

// Split breaks raw corpus text into fragments on double-newline boundaries.
// Fragments that are empty after trimming whitespace are discarded; the
// survivors keep their position in source order as Index.
func Split(text string) []Fragment {
	blocks := strings.Split(text, "\n\n")
	fragments := make([]Fragment, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) == "" {
			continue
		}
		fragments = append(fragments, Fragment{Index: len(fragments), Text: b})
	}
	return fragments
}

// Store owns the corpus for the process lifetime. Load is called once at
// startup; a failure is recorded rather than fatal so the server can still
// answer health checks and degrade chat requests gracefully.
type Store struct {
	path   string
	logger log.Logger

	corpus *Corpus
	err    error
}

// NewStore creates a store for the corpus at path. The corpus is not read
// until Load is called.
func NewStore(path string, logger log.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the corpus file and records the result. Returns the load error,
// if any; the store stays usable either way.
func (s *Store) Load() error {
	s.corpus, s.err = Load(s.path)
	if s.err != nil {
		s.logger.Error("corpus load failed", "path", s.path, "error", s.err)
		return s.err
	}
	s.logger.Info("corpus loaded",
		"path", s.path,
		"bytes", s.corpus.Size,
		"fragments", len(s.corpus.Fragments),
	)
	return nil
}

// Corpus returns the loaded corpus, or the error recorded at Load.
func (s *Store) Corpus() (*Corpus, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.corpus == nil {
		return nil, fmt.Errorf("%w: store not loaded", ErrNotFound)
	}
	return s.corpus, nil
}

// Loaded reports whether the corpus was read successfully.
func (s *Store) Loaded() bool {
	return s.err == nil && s.corpus != nil
}

// Size returns the corpus byte size, or 0 when the load failed.
func (s *Store) Size() int64 {
	if s.corpus == nil {
		return 0
	}
	return s.corpus.Size
}
