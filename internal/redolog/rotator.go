package redolog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

const archiveTimeLayout = "20060102.150405.000"

var archiveName = regexp.MustCompile(`^redo-(\d{8}\.\d{6}\.\d{3})-seq(\d+)\.log$`)

// ArchivedLog is a rotated journal in the archive directory.
type ArchivedLog struct {
	Path string
	Seq  int64
}

// Rotator moves full journals into the archive directory.
type Rotator struct {
	activePath string
	archiveDir string
	maxSize    int64 // 0 = no rotation
	logger     *logger.Logger
}

func NewRotator(activePath, archiveDir string, maxSize int64, log *logger.Logger) *Rotator {
	return &Rotator{
		activePath: activePath,
		archiveDir: archiveDir,
		maxSize:    maxSize,
		logger:     log,
	}
}

// ShouldRotate checks if rotation is needed based on current size.
func (r *Rotator) ShouldRotate(size int64) bool {
	if r.maxSize == 0 {
		return false
	}
	return size >= r.maxSize
}

// ArchiveName returns the archive file name for a journal with header h:
// redo-<create time>-seq<seq>.log.
func ArchiveName(h *redo.LogHeader) string {
	ts := time.UnixMilli(h.CreateTime).UTC().Format(archiveTimeLayout)
	return fmt.Sprintf("redo-%s-seq%d.log", ts, h.Seq)
}

// Rotate renames the (closed) active journal into the archive and returns
// its new path.
func (r *Rotator) Rotate(h *redo.LogHeader) (string, error) {
	if err := os.MkdirAll(r.archiveDir, 0755); err != nil {
		return "", errors.Wrapf(errors.ErrFileOpen, "create archive dir: %v", err)
	}
	newPath := filepath.Join(r.archiveDir, ArchiveName(h))

	r.logger.Info("Rotating redo log: %s -> %s", r.activePath, newPath)

	if err := os.Rename(r.activePath, newPath); err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(errors.ErrFileOpen, "active redo log not found: %s", r.activePath)
		}
		return "", errors.Wrapf(errors.ErrFileWrite, "rename redo log: %v", err)
	}
	return newPath, nil
}

// ListArchived returns archived journals sorted by sequence number.
func (r *Rotator) ListArchived() ([]ArchivedLog, error) {
	entries, err := os.ReadDir(r.archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrFileRead, "read archive dir: %v", err)
	}

	var logs []ArchivedLog
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := archiveName.FindStringSubmatch(entry.Name())
		if m == nil {
			r.logger.Debug("Ignoring non-journal file: %s", entry.Name())
			continue
		}
		seq, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		logs = append(logs, ArchivedLog{Path: filepath.Join(r.archiveDir, entry.Name()), Seq: seq})
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].Seq < logs[j].Seq })
	return logs, nil
}

// AllLogPaths returns every journal in replay order: archived ones by
// sequence, then the active journal if it exists.
func (r *Rotator) AllLogPaths() ([]string, error) {
	archived, err := r.ListArchived()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(archived)+1)
	for _, a := range archived {
		paths = append(paths, a.Path)
	}
	if _, err := os.Stat(r.activePath); err == nil {
		paths = append(paths, r.activePath)
	}
	return paths, nil
}

// LastArchivedSeq returns the highest archived sequence number, or 0.
func (r *Rotator) LastArchivedSeq() (int64, error) {
	archived, err := r.ListArchived()
	if err != nil || len(archived) == 0 {
		return 0, err
	}
	return archived[len(archived)-1].Seq, nil
}
