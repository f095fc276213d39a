// Package config loads the runtime configuration and task definitions that
// drive a run.
//
// # Overview
//
// Configuration lives in a directory holding an up.yaml file and a tasks
// directory:
//
//	~/.config/up/
//	    up.yaml
//	    tasks/
//	        brew.yaml
//	        dotfiles.yaml
//	        repos.toml
//
// up.yaml holds run-wide settings:
//
//	env:
//	  DOTFILES: ~/code/dotfiles
//	inherit_env: [HOME, PATH, USER]
//	bootstrap_tasks: [brew]
//	keep_going: false
//	concurrency: 4
//
// Scalar settings can be overridden by UP_* environment variables and by
// command line flags bound to the same viper instance.
//
// # Task Files
//
// Each file in the tasks directory defines one task. Its id is the file name
// without extension unless the file sets name. A task either runs a command
// (run_cmd) or one of the built-in libraries (run_lib) configured by data:
//
//	description: Link dotfiles into the home directory.
//	run_lib: link
//	data:
//	  from: $DOTFILES
//	  to: "~"
//
// The libraries are link, git, defaults and generate_git. generate_git
// scans search_paths for existing checkouts and writes them to path as a
// git task file.
//
// YAML files are decoded with gopkg.in/yaml.v3, TOML files with
// github.com/BurntSushi/toml. Unknown fields are errors. Payloads are
// validated with go-playground/validator.
//
// # Environment
//
// Commands run with an environment built from the process environment
// (every variable, or only those named by inherit_env), then the env block
// of up.yaml, then the task's own env block. $VAR, ${VAR} and a leading ~
// in commands and paths are resolved against that environment; referencing
// an undefined variable is a config error.
package config
