package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// GenerateOptions describes a task file listing the checkouts found under
// a set of directories.
type GenerateOptions struct {
	// Path is the task file to create or update.
	Path string `yaml:"path" toml:"path" validate:"required"`
	// SearchPaths are walked for checkouts.
	SearchPaths []string `yaml:"search_paths" toml:"search_paths" validate:"required,min=1,dive,required"`
	// Excludes skips checkouts whose path contains any of these strings.
	Excludes []string `yaml:"excludes,omitempty" toml:"excludes"`
	// Prune is copied into every generated repository.
	Prune bool `yaml:"prune,omitempty" toml:"prune"`
	// RemoteOrder ranks remote names; the best ranked remote of a checkout
	// is recorded. Unranked remotes are chosen alphabetically.
	RemoteOrder []string `yaml:"remote_order,omitempty" toml:"remote_order"`
}

// GenerateAll runs Generate for each entry in order and stops at the first
// error.
func (s *Syncer) GenerateAll(ctx context.Context, all []GenerateOptions) (bool, error) {
	changed := false
	for _, opts := range all {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		c, err := s.Generate(ctx, opts)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

// Generate discovers checkouts and writes them to opts.Path as a git task.
// Other fields of an existing task file are kept. It reports whether the
// file changed.
func (s *Syncer) Generate(ctx context.Context, opts GenerateOptions) (bool, error) {
	repos, err := s.Discover(ctx, opts)
	if err != nil {
		return false, err
	}
	changed, err := writeTaskFile(opts.Path, repos)
	if err != nil {
		return false, fmt.Errorf("failed to write %s: %w", opts.Path, err)
	}
	if changed {
		s.log.Infof("wrote %d repositories to %s", len(repos), opts.Path)
	}
	return changed, nil
}

// Discover lists the checkouts under opts.SearchPaths sorted by path.
// Walking stops at each checkout, so nested repositories are not listed.
// Checkouts without remotes are skipped.
func (s *Syncer) Discover(ctx context.Context, opts GenerateOptions) ([]Options, error) {
	var dirs []string
	for _, root := range opts.SearchPaths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path != root && errors.Is(err, fs.ErrPermission) {
					return fs.SkipDir
				}
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if excluded(path, opts.Excludes) {
				return fs.SkipDir
			}
			if _, err := os.Lstat(filepath.Join(path, ".git")); err == nil {
				dirs = append(dirs, path)
				return fs.SkipDir
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", root, err)
		}
	}
	sort.Strings(dirs)

	repos := make([]Options, 0, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		repo, ok, err := s.describe(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.Debugf("skipping %s: no remotes", dir)
			continue
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

func (s *Syncer) describe(ctx context.Context, dir string, opts GenerateOptions) (Options, bool, error) {
	out, err := s.git(ctx, dir, "remote")
	if err != nil {
		return Options{}, false, &SyncError{Kind: KindCommand, Path: dir, Message: "failed to list remotes", Err: err}
	}
	remote := pickRemote(strings.Fields(out), opts.RemoteOrder)
	if remote == "" {
		return Options{}, false, nil
	}
	url, err := s.git(ctx, dir, "remote", "get-url", remote)
	if err != nil {
		return Options{}, false, &SyncError{Kind: KindCommand, Path: dir, Message: "failed to read remote " + remote, Err: err}
	}

	repo := Options{URL: url, Path: dir, Prune: opts.Prune}
	if remote != DefaultRemote {
		repo.Remote = remote
	}
	return repo, true, nil
}

// pickRemote returns the first of order present in remotes, otherwise
// origin, otherwise the alphabetically first remote.
func pickRemote(remotes, order []string) string {
	present := make(map[string]bool, len(remotes))
	for _, r := range remotes {
		present[r] = true
	}
	for _, r := range order {
		if present[r] {
			return r
		}
	}
	if present[DefaultRemote] {
		return DefaultRemote
	}
	if len(remotes) == 0 {
		return ""
	}
	sorted := append([]string(nil), remotes...)
	sort.Strings(sorted)
	return sorted[0]
}

func excluded(path string, excludes []string) bool {
	for _, e := range excludes {
		if e != "" && strings.Contains(path, e) {
			return true
		}
	}
	return false
}

// writeTaskFile sets run_lib and data in the task file at path, creating
// it when missing. The file is rewritten only when its content changes.
func writeTaskFile(path string, repos []Options) (bool, error) {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(existing)) > 0 {
		if err := yaml.Unmarshal(existing, &doc); err != nil {
			return false, err
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return false, errors.New("task file is not a mapping")
	}

	data := &yaml.Node{}
	if err := data.Encode(repos); err != nil {
		return false, err
	}
	setKey(root, "run_lib", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "git"})
	setKey(root, "data", data)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return false, err
	}
	if err := enc.Close(); err != nil {
		return false, err
	}
	if bytes.Equal(buf.Bytes(), existing) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// setKey replaces the value of key in a mapping node, appending the key
// when absent.
func setKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}
