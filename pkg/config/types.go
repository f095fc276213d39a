package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/up/pkg/engine"
)

// Library names accepted by run_lib.
const (
	LibLink        = "link"
	LibGit         = "git"
	LibGenerateGit = "generate_git"
	LibDefaults    = "defaults"
)

// FileConfig is the content of up.yaml.
type FileConfig struct {
	// Env is added to every task's environment.
	Env map[string]string `yaml:"env"`

	// InheritEnv limits the inherited process environment to these names.
	// Nil inherits everything.
	InheritEnv []string `yaml:"inherit_env"`

	// TasksPath is the tasks directory, relative to up.yaml.
	TasksPath string `yaml:"tasks_path"`

	// BootstrapTasks lists tasks to run first, in order, in bootstrap mode.
	BootstrapTasks []string `yaml:"bootstrap_tasks"`

	// KeepGoing continues after a bootstrap task fails.
	KeepGoing bool `yaml:"keep_going"`

	// Concurrency bounds the worker pool. Zero means one worker per CPU.
	Concurrency int `yaml:"concurrency"`
}

// RuntimeConfig is the resolved run-wide configuration after flags and
// UP_* environment variables are applied.
type RuntimeConfig struct {
	TasksPath      string   `yaml:"tasks_path" validate:"required"`
	BootstrapTasks []string `yaml:"bootstrap_tasks" validate:"dive,required"`
	KeepGoing      bool     `yaml:"keep_going"`
	Concurrency    int      `yaml:"concurrency" validate:"gte=0"`
}

// TaskFile holds the fields shared by YAML and TOML task files.
type TaskFile struct {
	// Name overrides the task id derived from the file name.
	Name string `yaml:"name" toml:"name"`

	Description string `yaml:"description" toml:"description"`

	// AutoRun set to false runs the task only when it is named explicitly.
	AutoRun *bool `yaml:"auto_run" toml:"auto_run"`

	// Bootstrap marks the task for the serial bootstrap phase.
	Bootstrap bool `yaml:"bootstrap" toml:"bootstrap"`

	// RunLib selects a built-in library configured by data.
	RunLib string `yaml:"run_lib" toml:"run_lib" validate:"omitempty,oneof=link git generate_git defaults"`

	// RunIfCmd gates the task: exit 0 runs it, exit 204 skips it.
	RunIfCmd []string `yaml:"run_if_cmd" toml:"run_if_cmd" validate:"omitempty,min=1"`

	// RunCmd is the command run when RunLib is empty.
	RunCmd []string `yaml:"run_cmd" toml:"run_cmd" validate:"required_without=RunLib,excluded_with=RunLib"`

	// Dir is the working directory for commands, relative to up.yaml.
	Dir string `yaml:"dir" toml:"dir"`

	// Env is added to the task's environment.
	Env map[string]string `yaml:"env" toml:"env"`
}

type yamlTaskFile struct {
	TaskFile `yaml:",inline"`
	Data     yaml.Node `yaml:"data"`
}

type tomlTaskFile struct {
	TaskFile
	Data toml.Primitive `toml:"data"`
}

// Config is a loaded configuration directory.
type Config struct {
	// Path is the up.yaml file, empty when none was found.
	Path string

	// Dir is the directory relative paths are resolved against.
	Dir string

	Runtime RuntimeConfig

	// Env is the environment shared by every task.
	Env map[string]string

	// Tasks are the task definitions in file name order, with bootstrap
	// tasks moved to the front.
	Tasks []engine.TaskDefinition
}

// Task returns the definition with the given id.
func (c *Config) Task(id string) (engine.TaskDefinition, bool) {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return engine.TaskDefinition{}, false
}

// ValidationError describes an invalid field in a configuration file.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Path is the field path (e.g., "data.from").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.File != "" && e.Path != "":
		return fmt.Sprintf("%s: %s: %s", e.File, e.Path, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	default:
		return e.Message
	}
}
