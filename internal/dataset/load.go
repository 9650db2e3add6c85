package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

const rerunHint = "run the feature-extraction step first"

// Metadata column names understood by LoadMetadata. Only PathColumn is required.
const (
	PathColumn  = "path"
	LabelColumn = "label"
	IDColumn    = "gravityspy_id"
	IFOColumn   = "ifo"
)

// Load reads the embedding matrix and the metadata table and binds them into
// a Collection. It fails without returning partial state when either file is
// missing or malformed or when the row counts differ.
func Load(fsys fsutil.FileSystem, embeddingsPath, metadataPath string) (*Collection, error) {
	embeddings, err := LoadEmbeddings(fsys, embeddingsPath)
	if err != nil {
		return nil, err
	}
	samples, err := LoadMetadata(fsys, metadataPath)
	if err != nil {
		return nil, err
	}

	rows, _ := embeddings.Dims()
	if rows != len(samples) {
		return nil, fmt.Errorf("%w: embeddings has %d rows, metadata has %d rows", ErrRowCountMismatch, rows, len(samples))
	}

	c, err := NewCollection(embeddings, samples)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("[data] validation passed: %d samples aligned", c.Len())
	return c, nil
}

// LoadEmbeddings reads an N×D matrix from a .npy file or a headerless .csv file.
func LoadEmbeddings(fsys fsutil.FileSystem, path string) (*mat.Dense, error) {
	if !fsys.Exists(path) {
		return nil, fmt.Errorf("%w: embeddings file not found: %s; %s", ErrMissingInput, path, rerunHint)
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open embeddings: %w", err)
	}
	defer f.Close()

	var m *mat.Dense
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		m, err = readNPY(f)
	case ".csv":
		m, err = readCSVMatrix(f)
	default:
		return nil, fmt.Errorf("%w: embeddings must be .npy or .csv, got %s", ErrBadShape, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read embeddings %s: %w", path, err)
	}

	r, c := m.Dims()
	monitoring.Logf("[data] loaded embeddings: (%d, %d)", r, c)
	return m, nil
}

func readNPY(r io.Reader) (m *mat.Dense, err error) {
	// npyio panics through gonum on zero-sized shapes; report those as bad shapes.
	defer func() {
		if rec := recover(); rec != nil {
			m, err = nil, fmt.Errorf("%w: %v", ErrBadShape, rec)
		}
	}()

	var dense mat.Dense
	if err := npyio.Read(r, &dense); err != nil {
		return nil, fmt.Errorf("%w: expected a 2D float array: %v", ErrBadShape, err)
	}
	if dense.IsEmpty() {
		return nil, fmt.Errorf("%w: embeddings array is empty", ErrBadShape)
	}
	return &dense, nil
}

func readCSVMatrix(r io.Reader) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	var data []float64
	rows, cols := 0, -1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadShape, err)
		}
		if cols == -1 {
			cols = len(rec)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %v", ErrBadShape, rows+1, j+1, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 || cols < 1 {
		return nil, fmt.Errorf("%w: embeddings file has no rows", ErrBadShape)
	}
	return mat.NewDense(rows, cols, data), nil
}

// LoadMetadata reads the metadata CSV. The header must contain a "path"
// column; label, gravityspy_id and ifo are optional.
func LoadMetadata(fsys fsutil.FileSystem, path string) ([]Sample, error) {
	if !fsys.Exists(path) {
		return nil, fmt.Errorf("%w: metadata file not found: %s; %s", ErrMissingInput, path, rerunHint)
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata header: %v", ErrMissingColumn, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	pathIdx, ok := cols[PathColumn]
	if !ok {
		return nil, fmt.Errorf("%w: metadata CSV must contain a %q column pointing to image files", ErrMissingColumn, PathColumn)
	}
	field := func(rec []string, name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var samples []Sample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read metadata row %d: %w", len(samples)+2, err)
		}
		label := field(rec, LabelColumn)
		samples = append(samples, Sample{
			Index:          len(samples),
			ID:             field(rec, IDColumn),
			Path:           rec[pathIdx],
			Label:          label,
			RawLabel:       label,
			Interferometer: field(rec, IFOColumn),
		})
	}

	monitoring.Logf("[data] loaded metadata: %d rows", len(samples))
	return samples, nil
}
