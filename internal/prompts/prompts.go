// Package prompts loads the exhibition prompt list from a CSV file and hands
// out one prompt per generation tick.
//
// The CSV format is the curator-facing contract: a header row naming
// Description, Material and Object columns (case-insensitive, prefix match,
// extra columns ignored), then one row per prompt. "Old,wood,chair" becomes
// the prompt "Old wood chair".
package prompts

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
)

// Row is one prompt entry from the CSV.
type Row struct {
	Description string
	Material    string
	Object      string
}

// Prompt joins the row's fields into the text sent to the generation model.
func (r Row) Prompt() string {
	return strings.TrimSpace(r.Description + " " + r.Material + " " + r.Object)
}

// FormatError reports a prompts file that cannot be used: missing required
// columns, no header, or no usable rows. It is fatal at startup.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("prompts file %s: %s", e.Path, e.Reason)
}

// Load parses the CSV at path into an ordered row list.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompts: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // rows may carry extra columns

	header, err := r.Read()
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "empty or missing header row"}
	}

	descIdx, matIdx, objIdx := -1, -1, -1
	for i, h := range header {
		switch h := strings.ToLower(strings.TrimSpace(h)); {
		case strings.HasPrefix(h, "description") && descIdx < 0:
			descIdx = i
		case strings.HasPrefix(h, "material") && matIdx < 0:
			matIdx = i
		case strings.HasPrefix(h, "object") && objIdx < 0:
			objIdx = i
		}
	}
	if descIdx < 0 || matIdx < 0 || objIdx < 0 {
		return nil, &FormatError{Path: path, Reason: "required columns Description, Material, Object not found in header"}
	}
	maxIdx := descIdx
	if matIdx > maxIdx {
		maxIdx = matIdx
	}
	if objIdx > maxIdx {
		maxIdx = objIdx
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A parse error mid-file (bad quoting) must not silently
			// truncate the exhibition's prompt list.
			return nil, &FormatError{Path: path, Reason: fmt.Sprintf("csv parse: %v", err)}
		}
		if len(rec) <= maxIdx {
			continue
		}
		row := Row{
			Description: strings.TrimSpace(rec[descIdx]),
			Material:    strings.TrimSpace(rec[matIdx]),
			Object:      strings.TrimSpace(rec[objIdx]),
		}
		// Rows with any empty field are curator placeholders; skip them.
		if row.Description == "" || row.Material == "" || row.Object == "" {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, &FormatError{Path: path, Reason: "no usable prompt rows"}
	}
	return rows, nil
}

// Source hands out one Row per tick. Cyclic mode walks the rows in file
// order and wraps; random mode recombines the three columns independently,
// which is how the installation originally mixed prompts.
type Source struct {
	mu   sync.Mutex
	rows []Row
	next int

	random bool
	rng    *rand.Rand
}

// NewSource builds a cyclic Source over rows.
func NewSource(rows []Row) *Source {
	return &Source{rows: rows}
}

// NewRandomSource builds a Source that recombines columns at random.
// seed fixes the sequence for tests; pass a time-based seed in production.
func NewRandomSource(rows []Row, seed int64) *Source {
	return &Source{rows: rows, random: true, rng: rand.New(rand.NewSource(seed))}
}

// Len returns the number of loaded rows.
func (s *Source) Len() int {
	return len(s.rows)
}

// Next returns the row for the next tick. In cyclic mode the read after the
// last row returns row 0 again.
func (s *Source) Next() Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.random {
		return Row{
			Description: s.rows[s.rng.Intn(len(s.rows))].Description,
			Material:    s.rows[s.rng.Intn(len(s.rows))].Material,
			Object:      s.rows[s.rng.Intn(len(s.rows))].Object,
		}
	}
	row := s.rows[s.next]
	s.next = (s.next + 1) % len(s.rows)
	return row
}

// Rows returns a copy of the loaded rows, for the API.
func (s *Source) Rows() []Row {
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}
