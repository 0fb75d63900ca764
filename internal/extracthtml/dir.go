package extracthtml

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// SourceFileColumn is appended to the schema by ExtractDir.
const SourceFileColumn = "source_file"

// ExtractDir runs ex over every regular file in dir, in file name order, and
// merges the results. Each record gains a source_file column. Files that
// cannot be read are logged and skipped.
func ExtractDir(dir string, ex *Extractor) (RecordSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return RecordSet{}, fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	out := RecordSet{
		Schema:  append(ex.Schema(), Column{Name: SourceFileColumn, Type: TypeString}),
		Records: []Record{},
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		full := filepath.Join(dir, e.Name())
		html, err := readFile(full)
		if err != nil {
			ex.logger.Warn("skipping unreadable file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}

		rs, err := ex.ExtractHTML(html)
		out.Candidates += rs.Candidates
		out.Rejected += rs.Rejected
		out.Skipped = append(out.Skipped, rs.Skipped...)
		for _, r := range rs.Records {
			r.Set(SourceFileColumn, e.Name())
			out.Records = append(out.Records, r)
		}
		if err != nil {
			return out, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return out, nil
}

func readFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	s, err := readUTF8(f, "")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("empty file")
	}
	return s, nil
}
