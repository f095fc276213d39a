// Package git clones and fast-forwards local repositories and prunes
// branches whose upstream was deleted. It drives the git command line so
// that host credential helpers apply.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/up/pkg/telemetry"
)

// DefaultRemote is used when Options.Remote is empty.
const DefaultRemote = "origin"

// Options describes one repository to keep in sync.
type Options struct {
	// URL is the remote to clone and fetch from.
	URL string `yaml:"git_url" toml:"git_url" validate:"required"`
	// Path is the local checkout.
	Path string `yaml:"path" toml:"path" validate:"required"`
	// Remote is the remote name, "origin" when empty.
	Remote string `yaml:"remote,omitempty" toml:"remote"`
	// Branch is checked out on clone and fast-forwarded on update. Empty
	// means the remote default on clone and the current branch on update.
	Branch string `yaml:"branch,omitempty" toml:"branch"`
	// Prune deletes local branches whose upstream is gone.
	Prune bool `yaml:"prune,omitempty" toml:"prune"`
}

func (o Options) remote() string {
	if o.Remote == "" {
		return DefaultRemote
	}
	return o.Remote
}

// Result describes what a sync did.
type Result struct {
	Changed bool
	Cloned  bool
	// Action is the update decided for the synced branch.
	Action UpdateAction
	Pruned []string
}

// Syncer synchronizes repositories through a Runner.
type Syncer struct {
	runner Runner
	log    *telemetry.Logger
}

// NewSyncer creates a syncer using the git binary on PATH.
func NewSyncer(log *telemetry.Logger) *Syncer {
	return NewSyncerWithRunner(&ExecRunner{}, log)
}

// NewSyncerWithRunner creates a syncer using the given runner.
func NewSyncerWithRunner(runner Runner, log *telemetry.Logger) *Syncer {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Syncer{runner: runner, log: log.NewComponentLogger("git")}
}

// SyncAll syncs each repository in order and stops at the first error. The
// context is checked before each repository.
func (s *Syncer) SyncAll(ctx context.Context, repos []Options) (bool, error) {
	changed := false
	for _, opts := range repos {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		result, err := s.Sync(ctx, opts)
		changed = changed || result.Changed
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// Sync clones opts.URL into opts.Path when nothing is there, and otherwise
// fetches and fast-forwards the branch. Local commits are never discarded.
func (s *Syncer) Sync(ctx context.Context, opts Options) (Result, error) {
	log := s.log.WithFields(map[string]interface{}{"path": opts.Path, "remote": opts.remote()})

	present, err := checkoutPresent(opts.Path)
	if err != nil {
		return Result{}, &SyncError{Kind: KindMissingRepo, Path: opts.Path, Message: "unusable checkout path", Err: err}
	}
	if !present {
		return s.clone(ctx, opts, log)
	}
	return s.update(ctx, opts, log)
}

func (s *Syncer) clone(ctx context.Context, opts Options, log *telemetry.Logger) (Result, error) {
	parent := filepath.Dir(opts.Path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Result{}, &SyncError{Kind: KindCommand, Path: opts.Path, Message: "failed to create parent directory", Err: err}
	}

	args := []string{"clone", "--origin", opts.remote()}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, "--", opts.URL, opts.Path)

	log.Infof("cloning %s", opts.URL)
	if _, err := s.runner.Run(ctx, parent, args...); err != nil {
		return Result{}, s.wrap(opts, "clone failed", err)
	}
	return Result{Changed: true, Cloned: true, Action: UpdateCreate}, nil
}

func (s *Syncer) update(ctx context.Context, opts Options, log *telemetry.Logger) (Result, error) {
	var result Result
	dir := opts.Path
	remote := opts.remote()

	if err := s.checkToplevel(ctx, dir); err != nil {
		return result, &SyncError{Kind: KindMissingRepo, Path: dir, Message: "path exists but is not a git repository", Err: err}
	}

	before, err := s.snapshot(ctx, dir, remote)
	if err != nil {
		return result, s.wrap(opts, "failed to list refs", err)
	}

	configChanged, err := s.ensureRemote(ctx, opts)
	if err != nil {
		return result, err
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	log.Debug("fetching")
	if _, err := s.git(ctx, dir, "fetch", "--prune", remote); err != nil {
		return result, s.wrap(opts, "fetch failed", err)
	}

	current, _ := s.git(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	branch := opts.Branch
	if branch == "" {
		branch = current
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if branch == "" {
		log.Warn("HEAD is detached and no branch was given, skipping update")
	} else {
		action, tracked, err := s.updateBranch(ctx, opts, branch, current, log)
		if err != nil {
			return result, err
		}
		result.Action = action
		configChanged = configChanged || tracked
	}

	if opts.Prune {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Pruned, err = s.prune(ctx, opts, current, log)
		if err != nil {
			return result, err
		}
	}

	after, err := s.snapshot(ctx, dir, remote)
	if err != nil {
		return result, s.wrap(opts, "failed to list refs", err)
	}
	result.Changed = configChanged || before != after
	return result, nil
}

// ensureRemote points the named remote at opts.URL, adding it if needed.
func (s *Syncer) ensureRemote(ctx context.Context, opts Options) (bool, error) {
	remote := opts.remote()
	url, err := s.git(ctx, opts.Path, "remote", "get-url", remote)
	switch {
	case err != nil:
		if _, err := s.git(ctx, opts.Path, "remote", "add", remote, opts.URL); err != nil {
			return false, s.wrap(opts, "failed to add remote", err)
		}
		return true, nil
	case url != opts.URL:
		if _, err := s.git(ctx, opts.Path, "remote", "set-url", remote, opts.URL); err != nil {
			return false, s.wrap(opts, "failed to set remote url", err)
		}
		s.log.Infof("remote %s changed from %s to %s", remote, url, opts.URL)
		return true, nil
	default:
		return false, nil
	}
}

// updateBranch fast-forwards branch to its upstream on the named remote. It
// reports the action taken and whether tracking configuration changed.
func (s *Syncer) updateBranch(ctx context.Context, opts Options, branch, current string, log *telemetry.Logger) (UpdateAction, bool, error) {
	dir := opts.Path
	remote := opts.remote()
	localRef := "refs/heads/" + branch
	remoteRef := "refs/remotes/" + remote + "/" + branch

	remoteSHA, err := s.git(ctx, dir, "rev-parse", "--verify", "--quiet", remoteRef+"^{commit}")
	if err != nil {
		if opts.Branch == "" {
			log.Debugf("branch %s has no counterpart on %s, nothing to update", branch, remote)
			return UpdateNone, false, nil
		}
		return UpdateNone, false, &SyncError{Kind: KindMissingBranch, Path: dir, Message: fmt.Sprintf("branch %s not found on %s", branch, remote)}
	}

	pair := RefPair{Remote: remoteSHA}
	pair.Local, _ = s.git(ctx, dir, "rev-parse", "--verify", "--quiet", localRef+"^{commit}")
	if pair.Local != "" && pair.Local != pair.Remote {
		pair.LocalInRemote = s.isAncestor(ctx, dir, pair.Local, pair.Remote)
		pair.RemoteInLocal = s.isAncestor(ctx, dir, pair.Remote, pair.Local)
	}

	action := DecideUpdate(pair)
	log.Debugf("branch %s: %s", branch, action)

	switch action {
	case UpdateCreate:
		if branch == current {
			// Unborn branch, e.g. a clone of an empty repository.
			_, err = s.git(ctx, dir, "merge", "--ff-only", "--quiet", remoteRef)
		} else {
			_, err = s.git(ctx, dir, "branch", "--track", branch, remote+"/"+branch)
		}
		if err != nil {
			return action, false, s.wrap(opts, "failed to create branch "+branch, err)
		}
		log.Infof("created %s at %s", branch, short(pair.Remote))
	case UpdateFastForward:
		if branch == current {
			_, err = s.git(ctx, dir, "merge", "--ff-only", "--quiet", remoteRef)
		} else {
			_, err = s.git(ctx, dir, "update-ref", "-m", "up: fast-forward", localRef, pair.Remote, pair.Local)
		}
		if err != nil {
			return action, false, s.wrap(opts, "fast-forward of "+branch+" failed", err)
		}
		log.Infof("fast-forwarded %s to %s", branch, short(pair.Remote))
	case UpdateAhead:
		log.Infof("branch %s has local commits not on %s, leaving it alone", branch, remote)
	case UpdateDiverged:
		return action, false, &SyncError{
			Kind:    KindNonFastForward,
			Path:    dir,
			Message: fmt.Sprintf("branch %s has diverged from %s/%s", branch, remote, branch),
		}
	}

	if opts.Branch == "" {
		return action, false, nil
	}
	tracked, err := s.ensureTracking(ctx, opts, branch)
	return action, tracked, err
}

// ensureTracking sets the upstream of branch to its counterpart on the
// named remote.
func (s *Syncer) ensureTracking(ctx context.Context, opts Options, branch string) (bool, error) {
	want := opts.remote() + "/" + branch
	upstream, _ := s.git(ctx, opts.Path, "rev-parse", "--abbrev-ref", branch+"@{upstream}")
	if upstream == want {
		return false, nil
	}
	if _, err := s.git(ctx, opts.Path, "branch", "--set-upstream-to="+want, branch); err != nil {
		return false, s.wrap(opts, "failed to set upstream", err)
	}
	return true, nil
}

func (s *Syncer) prune(ctx context.Context, opts Options, current string, log *telemetry.Logger) ([]string, error) {
	out, err := s.git(ctx, opts.Path, "for-each-ref", "--format="+branchFormat, "refs/heads")
	if err != nil {
		return nil, s.wrap(opts, "failed to list branches", err)
	}

	var pruned []string
	for _, name := range SelectPrunable(parseBranches(out), current, opts.remote()) {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		sha, _ := s.git(ctx, opts.Path, "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
		if _, err := s.git(ctx, opts.Path, "branch", "-D", name); err != nil {
			return pruned, s.wrap(opts, "failed to delete branch "+name, err)
		}
		log.Warnf("deleted branch %s, was at %s", name, short(sha))
		pruned = append(pruned, name)
	}
	return pruned, nil
}

// snapshot lists local branches and the named remote's tracking refs.
func (s *Syncer) snapshot(ctx context.Context, dir, remote string) (string, error) {
	return s.git(ctx, dir, "for-each-ref", "--format=%(refname) %(objectname)", "refs/heads", "refs/remotes/"+remote)
}

// checkToplevel fails unless dir is the top of a work tree.
func (s *Syncer) checkToplevel(ctx context.Context, dir string) error {
	top, err := s.git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return err
	}
	want, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(want); err == nil {
		want = resolved
	}
	if filepath.Clean(top) != want {
		return fmt.Errorf("%s is inside the work tree at %s", dir, top)
	}
	return nil
}

func (s *Syncer) isAncestor(ctx context.Context, dir, ancestor, descendant string) bool {
	_, err := s.git(ctx, dir, "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil
}

func (s *Syncer) git(ctx context.Context, dir string, args ...string) (string, error) {
	return s.runner.Run(ctx, dir, args...)
}

func (s *Syncer) wrap(opts Options, message string, err error) error {
	kind := KindCommand
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		kind = classify(cmdErr.Stderr)
	}
	return &SyncError{Kind: kind, Path: opts.Path, Message: message, Err: err}
}

// checkoutPresent reports whether path holds something to update. A missing
// path or an empty directory is cloned into.
func checkoutPresent(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s is not a directory", path)
	}

	dir, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer dir.Close()
	if _, err := dir.Readdirnames(1); errors.Is(err, io.EOF) {
		return false, nil
	}
	return true, nil
}

func short(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return strings.TrimSpace(sha)
}
