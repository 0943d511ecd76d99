package predict

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Pair is one row of a pair manifest.
type Pair struct {
	ID     string
	ImageA string
	ImageB string
}

// Summary is one row of a change report.
type Summary struct {
	ID            string  `dataframe:"id"`
	Width         int     `dataframe:"width"`
	Height        int     `dataframe:"height"`
	ChangedPixels int     `dataframe:"changed_pixels"`
	ChangeRatio   float64 `dataframe:"change_ratio"`
	MeanScore     float64 `dataframe:"mean_score"`
	RLE           string  `dataframe:"rle"`
}

var manifestColumns = []string{"id", "image_a", "image_b"}

// ReadManifest reads a CSV with header columns id, image_a and image_b.
func ReadManifest(r io.Reader) ([]Pair, error) {
	// keep ids like "0001" verbatim
	types := map[string]series.Type{
		"id":      series.String,
		"image_a": series.String,
		"image_b": series.String,
	}
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.WithTypes(types))
	if df.Err != nil {
		return nil, fmt.Errorf("read manifest: %w", df.Err)
	}

	names := make(map[string]bool)
	for _, n := range df.Names() {
		names[n] = true
	}
	for _, c := range manifestColumns {
		if !names[c] {
			return nil, fmt.Errorf("manifest is missing column %q", c)
		}
	}

	ids := df.Col("id").Records()
	as := df.Col("image_a").Records()
	bs := df.Col("image_b").Records()
	pairs := make([]Pair, len(ids))
	for i, id := range ids {
		if err := checkID(id); err != nil {
			return nil, fmt.Errorf("manifest row %v: %w", i+1, err)
		}
		pairs[i] = Pair{ID: id, ImageA: as[i], ImageB: bs[i]}
	}

	return pairs, nil
}

// checkID accepts ids usable as a file name inside the output directory.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid id %q: must be a plain file name", id)
	}
	return nil
}

// ReadManifestFile reads a manifest file. Relative image paths are resolved
// against the manifest's directory.
func ReadManifestFile(filename string) ([]Pair, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pairs, err := ReadManifest(f)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(filename)
	for i := range pairs {
		if !filepath.IsAbs(pairs[i].ImageA) {
			pairs[i].ImageA = filepath.Join(dir, pairs[i].ImageA)
		}
		if !filepath.IsAbs(pairs[i].ImageB) {
			pairs[i].ImageB = filepath.Join(dir, pairs[i].ImageB)
		}
	}

	return pairs, nil
}

// WriteReport writes summaries as CSV.
func WriteReport(w io.Writer, summaries []Summary) error {
	if len(summaries) == 0 {
		return fmt.Errorf("no summaries to write")
	}

	df := dataframe.LoadStructs(summaries)
	if df.Err != nil {
		return df.Err
	}

	return df.WriteCSV(w)
}
