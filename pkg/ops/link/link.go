// Package link keeps a destination tree populated with symbolic links to
// every file of a source tree.
package link

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/openfroyo/up/pkg/telemetry"
)

// Options configures a link synchronization.
type Options struct {
	// From is the source root whose files are linked.
	From string `yaml:"from" toml:"from" validate:"required"`
	// To is the destination root that receives the links.
	To string `yaml:"to" toml:"to" validate:"required"`
	// BackupDir, when set, receives anything that would otherwise be a
	// conflict. Left empty, conflicts fail the synchronization.
	BackupDir string `yaml:"backup_dir,omitempty" toml:"backup_dir"`
}

// Result summarizes an applied plan.
type Result struct {
	Changed   bool
	Created   int
	BackedUp  int
	Unchanged int
}

// Sync scans opts.From, plans every link and applies the plan. Conflicts
// are reported as a *ConflictError before any change is made.
func Sync(ctx context.Context, opts Options, log *telemetry.Logger) (Result, error) {
	if log == nil {
		log = telemetry.Nop()
	}
	log = log.WithFields(map[string]interface{}{"from": opts.From, "to": opts.To})

	entries, err := Scan(opts)
	if err != nil {
		return Result{}, err
	}
	plan := BuildPlan(entries, opts.BackupDir)
	log.Debugf("planned %d link actions with %d conflicts", len(plan.Actions), len(plan.Conflicts))

	return Apply(ctx, plan, log)
}

// Scan walks the source tree and inspects the destination of every
// non-directory entry. It does not modify anything.
func Scan(opts Options) ([]Entry, error) {
	from, err := rootDir("From", opts.From)
	if err != nil {
		return nil, err
	}
	to, err := rootDir("To", opts.To)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	err = filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		entry := Entry{Rel: rel, Source: path, Dest: filepath.Join(to, rel)}
		entry.State, entry.Target, err = inspect(entry.Source, entry.Dest)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", from, err)
	}
	return entries, nil
}

// Apply executes a plan. The context is checked between links.
func Apply(ctx context.Context, plan Plan, log *telemetry.Logger) (Result, error) {
	if log == nil {
		log = telemetry.Nop()
	}
	if len(plan.Conflicts) > 0 {
		return Result{}, &ConflictError{Paths: plan.Conflicts}
	}

	var result Result
	for _, action := range plan.Actions {
		if action.Kind == ActionNone {
			result.Unchanged++
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if action.Kind == ActionBackup {
			if err := os.MkdirAll(filepath.Dir(action.Backup), 0o755); err != nil {
				return result, fmt.Errorf("failed to create backup directory: %w", err)
			}
			if err := os.Rename(action.Dest, action.Backup); err != nil {
				return result, fmt.Errorf("failed to back up %s: %w", action.Dest, err)
			}
			log.Warnf("moved %s to %s", action.Dest, action.Backup)
			result.BackedUp++
		}

		if err := os.MkdirAll(filepath.Dir(action.Dest), 0o755); err != nil {
			return result, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.Symlink(action.Source, action.Dest); err != nil {
			return result, fmt.Errorf("failed to link %s: %w", action.Dest, err)
		}
		log.Infof("linked %s -> %s", action.Dest, action.Source)
		result.Created++
		result.Changed = true
	}
	return result, nil
}

func rootDir(role, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &DirectoryError{Role: role, Path: path, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &DirectoryError{Role: role, Path: abs, Err: err}
	}
	if !info.IsDir() {
		return "", &DirectoryError{Role: role, Path: abs}
	}
	// Links point at the resolved source so a symlinked root compares equal.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &DirectoryError{Role: role, Path: abs, Err: err}
	}
	return resolved, nil
}

func inspect(source, dest string) (State, string, error) {
	info, err := os.Lstat(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return StateAbsent, "", nil
	case errors.Is(err, syscall.ENOTDIR):
		return StateBlocked, "", nil
	case err != nil:
		return 0, "", fmt.Errorf("failed to inspect %s: %w", dest, err)
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(dest)
		if err != nil {
			return 0, "", fmt.Errorf("failed to read link %s: %w", dest, err)
		}
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(dest), resolved)
		}
		if filepath.Clean(resolved) == source {
			return StateLinked, target, nil
		}
		return StateOtherLink, target, nil
	case info.IsDir():
		return StateDirectory, "", nil
	default:
		return StateFile, "", nil
	}
}
