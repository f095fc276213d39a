package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/merge"
	"github.com/openfroyo/up/pkg/ops/defaults"
	"github.com/openfroyo/up/pkg/ops/git"
	"github.com/openfroyo/up/pkg/ops/link"
)

// globalDomainAlias selects defaults.GlobalDomain, as with `defaults -g`.
const globalDomainAlias = "-g"

// payload is the data block of a task file.
type payload interface {
	present() bool
	decode(v interface{}) error
	writes() ([]defaults.Write, error)
}

// loadTasks reads every task file in dir in file name order.
func (l *Loader) loadTasks(dir string, cfg *Config) ([]engine.TaskDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("cannot read tasks directory %s", dir), err)
	}

	var defs []engine.TaskDefinition
	seen := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		switch filepath.Ext(name) {
		case ".yaml", ".yml", ".toml":
		default:
			l.log.Debugf("ignoring %s", name)
			continue
		}

		path := filepath.Join(dir, name)
		def, err := l.loadTask(path, cfg)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[def.ID]; ok {
			return nil, engine.NewConfigError(fmt.Sprintf("task %q is defined by both %s and %s", def.ID, prev, path), nil).
				WithTask(def.ID)
		}
		seen[def.ID] = path
		defs = append(defs, def)
	}
	return defs, nil
}

// loadTask reads one task file.
func (l *Loader) loadTask(path string, cfg *Config) (engine.TaskDefinition, error) {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	fail := func(err error) (engine.TaskDefinition, error) {
		return engine.TaskDefinition{}, engine.NewConfigError(fmt.Sprintf("invalid task %s (%s)", id, path), err).WithTask(id)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}

	var (
		task TaskFile
		body payload
	)
	if filepath.Ext(path) == ".toml" {
		task, body, err = decodeTOMLTask(data)
	} else {
		task, body, err = decodeYAMLTask(data)
	}
	if err != nil {
		return fail(err)
	}
	if task.Name != "" {
		id = task.Name
	}
	if err := l.check(path, "", task); err != nil {
		return fail(err)
	}

	env, err := overlay(cfg.Env, task.Env)
	if err != nil {
		return fail(err)
	}
	dir := cfg.Dir
	if task.Dir != "" {
		if dir, err = cfg.resolvePath(task.Dir, env); err != nil {
			return fail(err)
		}
	}
	runIf, err := expandAll(task.RunIfCmd, env)
	if err != nil {
		return fail(fmt.Errorf("run_if_cmd: %w", err))
	}
	op, err := l.operation(path, task, body, cfg, env)
	if err != nil {
		return fail(err)
	}

	l.log.Debugf("loaded task %s (%s) from %s", id, op.Kind(), path)
	return engine.TaskDefinition{
		ID:          id,
		Description: task.Description,
		Bootstrap:   task.Bootstrap,
		AutoRun:     task.AutoRun,
		RunIf:       runIf,
		Operation:   op,
		Dir:         dir,
		Env:         env,
	}, nil
}

// operation builds the task's operation from run_cmd or run_lib and data.
func (l *Loader) operation(path string, task TaskFile, body payload, cfg *Config, env map[string]string) (engine.Operation, error) {
	if task.RunLib == "" {
		args, err := expandAll(task.RunCmd, env)
		if err != nil {
			return nil, fmt.Errorf("run_cmd: %w", err)
		}
		return engine.RunCommand{Run: args}, nil
	}

	if !body.present() {
		return nil, fmt.Errorf("run_lib %s requires data", task.RunLib)
	}

	switch task.RunLib {
	case LibLink:
		var opts link.Options
		if err := body.decode(&opts); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		if err := l.check(path, "data", opts); err != nil {
			return nil, err
		}
		for _, p := range []*string{&opts.From, &opts.To, &opts.BackupDir} {
			resolved, err := cfg.resolvePath(*p, env)
			if err != nil {
				return nil, fmt.Errorf("data: %w", err)
			}
			*p = resolved
		}
		return engine.Link{Options: opts}, nil

	case LibGit:
		var repos []git.Options
		if err := body.decode(&repos); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		if len(repos) == 0 {
			return nil, errors.New("data: at least one repository is required")
		}
		for i := range repos {
			if err := l.check(path, fmt.Sprintf("data[%d]", i), repos[i]); err != nil {
				return nil, err
			}
			url, err := Expand(repos[i].URL, env)
			if err != nil {
				return nil, fmt.Errorf("data[%d]: %w", i, err)
			}
			repos[i].URL = url
			if repos[i].Path, err = cfg.resolvePath(repos[i].Path, env); err != nil {
				return nil, fmt.Errorf("data[%d]: %w", i, err)
			}
		}
		return engine.GitSync{Repos: repos}, nil

	case LibGenerateGit:
		var targets []git.GenerateOptions
		if err := body.decode(&targets); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		if len(targets) == 0 {
			return nil, errors.New("data: at least one target is required")
		}
		for i := range targets {
			if len(targets[i].SearchPaths) == 0 {
				targets[i].SearchPaths = []string{"~"}
			}
			if err := l.check(path, fmt.Sprintf("data[%d]", i), targets[i]); err != nil {
				return nil, err
			}
			paths := append([]*string{&targets[i].Path}, stringPtrs(targets[i].SearchPaths)...)
			for _, p := range paths {
				resolved, err := cfg.resolvePath(*p, env)
				if err != nil {
					return nil, fmt.Errorf("data[%d]: %w", i, err)
				}
				*p = resolved
			}
		}
		return engine.GenerateGit{Targets: targets}, nil

	case LibDefaults:
		writes, err := body.writes()
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return engine.DefaultsWrite{Writes: writes}, nil

	default:
		return nil, fmt.Errorf("unknown run_lib %q", task.RunLib)
	}
}

func stringPtrs(s []string) []*string {
	ptrs := make([]*string, len(s))
	for i := range s {
		ptrs[i] = &s[i]
	}
	return ptrs
}

func newWrite(domain, key string, value merge.Value) defaults.Write {
	if domain == globalDomainAlias || domain == defaults.GlobalDomain {
		return defaults.Write{Key: key, Value: value, Global: true}
	}
	return defaults.Write{Domain: domain, Key: key, Value: value}
}

func decodeYAMLTask(data []byte) (TaskFile, payload, error) {
	var raw yamlTaskFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return TaskFile{}, nil, errors.New("task file is empty")
		}
		return TaskFile{}, nil, err
	}
	return raw.TaskFile, yamlPayload{node: &raw.Data}, nil
}

type yamlPayload struct {
	node *yaml.Node
}

func (p yamlPayload) present() bool {
	return p.node.Kind != 0 && p.node.Tag != "!!null"
}

func (p yamlPayload) decode(v interface{}) error {
	// Node.Decode cannot reject unknown fields, so go through a decoder.
	data, err := yaml.Marshal(p.node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

// writes reads a mapping of domain to a mapping of key to value, keeping
// document order.
func (p yamlPayload) writes() ([]defaults.Write, error) {
	if p.node.Kind != yaml.MappingNode {
		return nil, errors.New("expected a mapping of domains")
	}
	var writes []defaults.Write
	for i := 0; i+1 < len(p.node.Content); i += 2 {
		domain, prefs := p.node.Content[i].Value, p.node.Content[i+1]
		if prefs.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s: expected a mapping of keys", domain)
		}
		for j := 0; j+1 < len(prefs.Content); j += 2 {
			key := prefs.Content[j].Value
			value, err := merge.FromNode(prefs.Content[j+1])
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", domain, key, err)
			}
			writes = append(writes, newWrite(domain, key, value))
		}
	}
	return writes, nil
}

func decodeTOMLTask(data []byte) (TaskFile, payload, error) {
	var raw tomlTaskFile
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return TaskFile{}, nil, err
	}
	body := &tomlPayload{md: &md, data: raw.Data}
	if err := body.undecoded(false); err != nil {
		return TaskFile{}, nil, err
	}
	return raw.TaskFile, body, nil
}

type tomlPayload struct {
	md   *toml.MetaData
	data toml.Primitive
}

func (p *tomlPayload) present() bool {
	return p.md.IsDefined("data")
}

func (p *tomlPayload) decode(v interface{}) error {
	if err := p.md.PrimitiveDecode(p.data, v); err != nil {
		return err
	}
	return p.undecoded(true)
}

// writes reads a table of domains to tables of keys. Go maps carry no
// order, so domains, keys and nested tables are put back in document order
// from the decoder's metadata.
func (p *tomlPayload) writes() ([]defaults.Write, error) {
	var raw map[string]map[string]interface{}
	if err := p.md.PrimitiveDecode(p.data, &raw); err != nil {
		return nil, err
	}

	rank := p.keyOrder()
	var writes []defaults.Write
	for _, domain := range rank.sorted(toml.Key{"data"}, mapKeys(raw)) {
		prefs := raw[domain]
		domainPath := toml.Key{"data", domain}
		for _, key := range rank.sorted(domainPath, mapKeys(prefs)) {
			value, err := rank.value(append(domainPath[:len(domainPath):len(domainPath)], key), prefs[key])
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", domain, key, err)
			}
			writes = append(writes, newWrite(domain, key, value))
		}
	}
	return writes, nil
}

// tomlOrder maps a key path to the position it first appears in the
// document. Elements of an array share the array's path.
type tomlOrder map[string]int

func (p *tomlPayload) keyOrder() tomlOrder {
	order := make(tomlOrder)
	for i, key := range p.md.Keys() {
		name := key.String()
		if _, ok := order[name]; !ok {
			order[name] = i
		}
	}
	return order
}

// sorted orders the keys of the table at parent by document position.
// Keys without a recorded position go last, alphabetically.
func (o tomlOrder) sorted(parent toml.Key, keys []string) []string {
	pos := func(k string) (int, bool) {
		i, ok := o[append(parent[:len(parent):len(parent)], k).String()]
		return i, ok
	}
	sort.SliceStable(keys, func(a, b int) bool {
		pa, oka := pos(keys[a])
		pb, okb := pos(keys[b])
		switch {
		case oka && okb:
			return pa < pb
		case oka != okb:
			return oka
		default:
			return keys[a] < keys[b]
		}
	})
	return keys
}

// value converts decoded TOML data at path into a merge.Value, keeping
// table keys in document order.
func (o tomlOrder) value(path toml.Key, x interface{}) (merge.Value, error) {
	switch t := x.(type) {
	case map[string]interface{}:
		keys := o.sorted(path, mapKeys(t))
		entries := make([]merge.Entry, 0, len(keys))
		for _, k := range keys {
			v, err := o.value(append(path[:len(path):len(path)], k), t[k])
			if err != nil {
				return merge.Value{}, err
			}
			entries = append(entries, merge.E(k, v))
		}
		return merge.Map(entries...), nil
	case []map[string]interface{}:
		items := make([]merge.Value, 0, len(t))
		for _, elem := range t {
			v, err := o.value(path, elem)
			if err != nil {
				return merge.Value{}, err
			}
			items = append(items, v)
		}
		return merge.Seq(items...), nil
	case []interface{}:
		items := make([]merge.Value, 0, len(t))
		for _, elem := range t {
			v, err := o.value(path, elem)
			if err != nil {
				return merge.Value{}, err
			}
			items = append(items, v)
		}
		return merge.Seq(items...), nil
	default:
		return merge.FromAny(x)
	}
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// undecoded reports keys no field consumed. Keys under data are only
// checked once data has been decoded.
func (p *tomlPayload) undecoded(inData bool) error {
	var unknown []string
	for _, key := range p.md.Undecoded() {
		if (len(key) > 0 && key[0] == "data") != inData {
			continue
		}
		unknown = append(unknown, key.String())
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown fields: %s", strings.Join(unknown, ", "))
	}
	return nil
}
