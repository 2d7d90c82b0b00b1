package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/pkg/logger"
)

const (
	backupPrefix = "points-"
	backupSuffix = ".db"
)

// Backup snapshots a sqlite database into dir with VACUUM INTO and keeps the
// newest keep snapshots. It returns the path of the new snapshot.
func (s *SQLStore) Backup(ctx context.Context, dir string, keep int) (string, error) {
	if s.dialect != SQLite {
		return "", ErrBackupUnsupported
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failure.Storage("backup", err)
	}

	name := backupPrefix + s.now().UTC().Format("20060102T150405.000000") + backupSuffix
	path := filepath.Join(dir, name)
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return "", failure.Storage("backup", err)
	}
	s.logger.Info(ctx, "database snapshot written", logger.String("path", path))

	if err := prune(dir, keep); err != nil {
		s.logger.Warn(ctx, "pruning snapshots failed", logger.String("dir", dir), logger.Error(err))
	}
	return path, nil
}

// prune deletes all but the newest keep snapshots. Names sort chronologically.
func prune(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, backupPrefix) && strings.HasSuffix(n, backupSuffix) {
			names = append(names, n)
		}
	}
	if len(names) <= keep {
		return nil
	}
	slices.Sort(names)
	for _, n := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return fmt.Errorf("remove %s: %w", n, err)
		}
	}
	return nil
}
