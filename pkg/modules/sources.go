package modules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceExt is the file extension of module sources.
const SourceExt = ".dhd"

// DiscoverSources walks root and loads every module source under it.
// Hidden directories are skipped. Results are ordered by path so
// extraction is deterministic.
func DiscoverSources(root string) ([]Source, error) {
	var srcs []Source
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if filepath.Ext(d.Name()) != SourceExt {
			return nil
		}
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading module source %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		srcs = append(srcs, Source{Origin: rel, Text: string(text)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering module sources in %s: %w", root, err)
	}
	sort.Slice(srcs, func(i, j int) bool { return srcs[i].Origin < srcs[j].Origin })
	return srcs, nil
}
