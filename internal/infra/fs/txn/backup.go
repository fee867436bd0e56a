package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/spf13/afero"
)

// BackupSuffix separates the original file name from the backup number
const BackupSuffix = ".bak_"

// BackupName returns the backup path for number n, zero-padded to 3 digits
func BackupName(path string, n int) string {
	return fmt.Sprintf("%s%s%03d", path, BackupSuffix, n)
}

// IsBackupName reports whether name looks like a numbered backup
func IsBackupName(name string) bool {
	return anyBackupPattern.MatchString(name)
}

var anyBackupPattern = regexp.MustCompile(`\.bak_\d{3,}$`)

func backupPattern(path string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(filepath.Base(path)) + `\.bak_(\d{3,})$`)
}

// listBackups returns the existing backups of path in ascending number order
func listBackups(fs afero.Fs, path string) ([]BackupRecord, error) {
	dir := filepath.Dir(path)
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory %s: %w", dir, err)
	}

	pattern := backupPattern(path)
	var records []BackupRecord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		records = append(records, BackupRecord{
			OriginalPath: path,
			BackupPath:   filepath.Join(dir, e.Name()),
			Number:       n,
			Size:         e.Size(),
			CreatedAt:    e.ModTime().UTC(),
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Number < records[j].Number })
	return records, nil
}

// nextBackupNumber is one more than the highest existing number, or 0
func nextBackupNumber(records []BackupRecord) int {
	if len(records) == 0 {
		return 0
	}
	return records[len(records)-1].Number + 1
}

// writeBackup copies data to the numbered backup path. O_EXCL guarantees an
// existing backup is never overwritten. The written bytes are read back and
// their checksum compared with the source.
func writeBackup(fs afero.Fs, path string, n int, data []byte, perm os.FileMode) (*BackupRecord, error) {
	backupPath := BackupName(path, n)

	f, err := fs.OpenFile(backupPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return nil, fmt.Errorf("create backup %s: %w", backupPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("write backup %s: %w", backupPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync backup %s: %w", backupPath, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close backup %s: %w", backupPath, err)
	}

	written, err := afero.ReadFile(fs, backupPath)
	if err != nil {
		return nil, fmt.Errorf("verify backup %s: %w", backupPath, err)
	}
	want := checksum(data)
	if got := checksum(written); got != want {
		return nil, fmt.Errorf("verify backup %s: checksum mismatch (want %s, got %s)", backupPath, want, got)
	}

	info, err := fs.Stat(backupPath)
	if err != nil {
		return nil, fmt.Errorf("stat backup %s: %w", backupPath, err)
	}

	return &BackupRecord{
		OriginalPath: path,
		BackupPath:   backupPath,
		Number:       n,
		Checksum:     want,
		Size:         int64(len(data)),
		CreatedAt:    info.ModTime().UTC(),
	}, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
