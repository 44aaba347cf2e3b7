package ingest

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// FileSource loads the configured external-id list from a newline-delimited
// file. Blank lines and '#' comments are skipped; duplicates are dropped
// keeping first occurrence so batch totals match distinct ids.
type FileSource struct {
	Path string
}

// Load reads and deduplicates the id list.
func (s FileSource) Load() ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open id source: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id source: %w", err)
	}
	return ids, nil
}
