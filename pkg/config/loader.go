package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/telemetry"
)

// Viper keys of the run-wide settings.
const (
	KeyTasksPath      = "tasks_path"
	KeyBootstrapTasks = "bootstrap_tasks"
	KeyKeepGoing      = "keep_going"
	KeyConcurrency    = "concurrency"
)

const (
	// FileName is the name of the configuration file.
	FileName = "up.yaml"

	// DefaultTasksPath is the tasks directory used when tasks_path is unset.
	DefaultTasksPath = "tasks"

	// EnvPrefix prefixes environment variables that override settings.
	EnvPrefix = "UP"
)

// DefaultPath returns $XDG_CONFIG_HOME/up/up.yaml, or ~/.config/up/up.yaml
// when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "up", FileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate config directory: %w", err)
	}
	return filepath.Join(home, ".config", "up", FileName), nil
}

// Loader reads configuration directories.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate
	environ  []string
	log      *telemetry.Logger
}

// NewLoader creates a loader. Settings found in v, through bound flags or
// UP_* environment variables, override those in up.yaml. A nil v uses a
// fresh viper instance.
func NewLoader(v *viper.Viper, log *telemetry.Logger) *Loader {
	if v == nil {
		v = viper.New()
	}
	if log == nil {
		log = telemetry.Nop()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	return &Loader{
		v:        v,
		validate: validate,
		environ:  os.Environ(),
		log:      log.NewComponentLogger("config"),
	}
}

// WithEnviron replaces the process environment tasks inherit from.
func (l *Loader) WithEnviron(environ []string) *Loader {
	l.environ = environ
	return l
}

// Load reads up.yaml at path and the task files it points to. An empty path
// uses DefaultPath, which may be missing; an explicit path must exist.
func (l *Loader) Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, engine.NewConfigError("cannot locate config", err)
		}
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, engine.NewConfigError("cannot resolve config path", err)
	}

	cfg := &Config{Dir: filepath.Dir(path)}
	var file FileConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg.Path = path
		if err := decodeFileConfig(data, &file); err != nil {
			return nil, engine.NewConfigError(fmt.Sprintf("invalid config %s", path), err)
		}
		l.log.Debugf("loaded config %s", path)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		l.log.Debugf("no config at %s, using defaults", path)
	default:
		return nil, engine.NewConfigError(fmt.Sprintf("cannot read config %s", path), err)
	}

	if cfg.Runtime, err = l.resolveRuntime(path, file); err != nil {
		return nil, err
	}
	if cfg.Env, err = BuildEnv(l.environ, file.InheritEnv, file.Env); err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("invalid env in %s", path), err)
	}

	tasksDir, err := cfg.resolvePath(cfg.Runtime.TasksPath, cfg.Env)
	if err != nil {
		return nil, engine.NewConfigError("invalid tasks_path", err)
	}
	tasks, err := l.loadTasks(tasksDir, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Tasks, err = engine.ApplyBootstrapOrder(tasks, cfg.Runtime.BootstrapTasks); err != nil {
		return nil, err
	}

	l.log.Debugf("loaded %d tasks from %s", len(cfg.Tasks), tasksDir)
	return cfg, nil
}

// resolveRuntime layers flags and UP_* variables over the file settings.
func (l *Loader) resolveRuntime(path string, file FileConfig) (RuntimeConfig, error) {
	tasksPath := file.TasksPath
	if tasksPath == "" {
		tasksPath = DefaultTasksPath
	}
	l.v.SetDefault(KeyTasksPath, tasksPath)
	l.v.SetDefault(KeyBootstrapTasks, file.BootstrapTasks)
	l.v.SetDefault(KeyKeepGoing, file.KeepGoing)
	l.v.SetDefault(KeyConcurrency, file.Concurrency)

	rc := RuntimeConfig{
		TasksPath:      l.v.GetString(KeyTasksPath),
		BootstrapTasks: l.v.GetStringSlice(KeyBootstrapTasks),
		KeepGoing:      l.v.GetBool(KeyKeepGoing),
		Concurrency:    l.v.GetInt(KeyConcurrency),
	}
	if err := l.check(path, "", rc); err != nil {
		return RuntimeConfig{}, engine.NewConfigError("invalid settings", err)
	}
	return rc, nil
}

// check validates v and converts failures into ValidationErrors whose
// paths are prefixed with prefix.
func (l *Loader) check(file, prefix string, v interface{}) error {
	err := l.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		if prefix != "" {
			path = prefix + "." + path
		}
		errs = append(errs, &ValidationError{File: file, Path: path, Message: describe(fe)})
	}
	return errors.Join(errs...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required unless run_lib is set"
	case "excluded_with":
		return "cannot be combined with run_lib"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s elements", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func decodeFileConfig(data []byte, file *FileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// resolvePath expands p and makes it absolute relative to the config
// directory.
func (c *Config) resolvePath(p string, env map[string]string) (string, error) {
	expanded, err := Expand(p, env)
	if err != nil {
		return "", err
	}
	if expanded == "" || filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Join(c.Dir, expanded), nil
}
