// Package storage reports how much disk the index shards and rule database use.
package storage

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotoba/internal/config"
)

// Paths returns the on-disk locations owned by cfg: the index directory and,
// for sqlite3, the rule database with its WAL files. In-memory and remote
// stores contribute nothing.
func Paths(cfg config.StorageConfig) []string {
	var paths []string
	if cfg.IndexPath != "" {
		paths = append(paths, cfg.IndexPath)
	}
	if cfg.RulesDriver == "sqlite3" && cfg.RulesDSN != "" && cfg.RulesDSN != ":memory:" {
		paths = append(paths, cfg.RulesDSN, cfg.RulesDSN+"-wal", cfg.RulesDSN+"-shm")
	}
	return paths
}

// DiskUsageBytes returns the total size in bytes of paths. Directories are
// summed recursively. Missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
