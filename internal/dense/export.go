package dense

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bambicim/copilot/internal/ann"
)

// Export file names
const (
	CorpusFile  = "corpus.jsonl"
	VectorsFile = "vectors.bin"
)

// ExportRecord is one line of corpus.jsonl. Line i describes vector i.
type ExportRecord struct {
	PID   string `json:"pid"`
	DocID string `json:"doc_id"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Export is a dense index loaded back from disk.
type Export struct {
	Records []ExportRecord
	Index   ann.Index
}

// LoadExport reads corpus.jsonl and vectors.bin from dir into an index of kind.
func LoadExport(dir string, kind ann.Kind) (*Export, error) {
	records, err := readCorpus(filepath.Join(dir, CorpusFile))
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}

	idx, err := ann.New(kind)
	if err != nil {
		return nil, err
	}
	if err := idx.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode vectors: %w", err)
	}
	if idx.Len() != len(records) {
		return nil, fmt.Errorf("export mismatch: %d vectors for %d records", idx.Len(), len(records))
	}

	return &Export{Records: records, Index: idx}, nil
}

// Search returns the k records most similar to query.
func (e *Export) Search(query []float32, k int) ([]ExportRecord, []float64, error) {
	ids, scores, err := e.Index.Query(query, k)
	if err != nil {
		return nil, nil, err
	}

	byPID := make(map[string]int, len(e.Records))
	for i, r := range e.Records {
		byPID[r.PID] = i
	}

	out := make([]ExportRecord, 0, len(ids))
	kept := make([]float64, 0, len(ids))
	for i, id := range ids {
		if pos, ok := byPID[id]; ok {
			out = append(out, e.Records[pos])
			kept = append(kept, scores[i])
		}
	}
	return out, kept, nil
}

// WriteExport writes records and their vectors to dir, creating it if needed.
func WriteExport(dir string, records []ExportRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("export mismatch: %d vectors for %d records", len(vectors), len(records))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.PID
	}
	idx := &ann.BruteForce{}
	if err := idx.Build(ids, vectors); err != nil {
		return err
	}
	data, err := idx.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, VectorsFile), data, 0o644); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, CorpusFile))
	if err != nil {
		return fmt.Errorf("create corpus: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return fmt.Errorf("write corpus: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write corpus: %w", err)
	}
	return f.Close()
}

func readCorpus(path string) ([]ExportRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var records []ExportRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r ExportRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return records, nil
}
