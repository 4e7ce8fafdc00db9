package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ArchiveInfo describes an archive file on disk.
type ArchiveInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	PlanID    string    `json:"plan_id,omitempty"`
	Version   int       `json:"version"`
}

// Retention decides which archives in a directory survive a prune. A zero
// field disables that limit; an archive is kept if any enabled limit keeps it.
type Retention struct {
	Keep   int           // newest archives to keep
	MaxAge time.Duration // keep archives younger than this
}

// Select splits archives (sorted newest-first) into kept and dropped.
func (r Retention) Select(archives []ArchiveInfo, now time.Time) (keep, drop []ArchiveInfo) {
	if r.Keep <= 0 && r.MaxAge <= 0 {
		return archives, nil
	}
	cutoff := now.Add(-r.MaxAge)
	for i, a := range archives {
		byCount := r.Keep > 0 && i < r.Keep
		byAge := r.MaxAge > 0 && a.CreatedAt.After(cutoff)
		if byCount || byAge {
			keep = append(keep, a)
		} else {
			drop = append(drop, a)
		}
	}
	return keep, drop
}

// ListArchives returns the archives in dir, newest first. A missing
// directory has no archives.
func ListArchives(dir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []ArchiveInfo
	for _, e := range entries {
		if e.IsDir() || !isArchiveFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		a := ArchiveInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if h, err := ReadHeader(a.Path); err == nil {
			a.Version = h.Version
			a.PlanID = h.PlanID
			if !h.CreatedAt.IsZero() {
				a.CreatedAt = h.CreatedAt
			}
		} else if v, err := DetectFormat(a.Path); err == nil {
			a.Version = v
		}
		archives = append(archives, a)
	}

	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].CreatedAt.After(archives[j].CreatedAt)
		}
		return archives[i].Path > archives[j].Path
	})
	return archives, nil
}

// Prune deletes the archives in dir that r does not keep.
func Prune(dir string, r Retention, now time.Time) (deleted []string, err error) {
	archives, err := ListArchives(dir)
	if err != nil {
		return nil, err
	}

	_, drop := r.Select(archives, now)
	for _, a := range drop {
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

func isArchiveFile(name string) bool {
	return strings.HasPrefix(name, "netsweep-") && strings.HasSuffix(name, ".nsa")
}

// ParseDuration parses durations like "30d", "2w" or anything
// time.ParseDuration accepts.
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown duration suffix in %q", s)
}
