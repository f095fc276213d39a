package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// BuildEnv returns the environment shared by every task: the variables of
// environ (all of them, or only those named in inherit when it is non-nil)
// overlaid with extra. Values in extra are expanded against the inherited
// variables.
func BuildEnv(environ []string, inherit []string, extra map[string]string) (map[string]string, error) {
	env := make(map[string]string, len(environ))
	var keep map[string]bool
	if inherit != nil {
		keep = make(map[string]bool, len(inherit))
		for _, name := range inherit {
			keep[name] = true
		}
	}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if keep != nil && !keep[name] {
			continue
		}
		env[name] = value
	}

	return overlay(env, extra)
}

// overlay returns a copy of env with extra added. Each value in extra is
// expanded against env.
func overlay(env, extra map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env)+len(extra))
	for k, v := range env {
		out[k] = v
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, err := Expand(extra[name], env)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}

// Expand replaces $VAR and ${VAR} in s with values from env, and a leading
// ~ with $HOME. $$ is a literal $. Undefined variables are an error.
func Expand(s string, env map[string]string) (string, error) {
	if s == "~" || strings.HasPrefix(s, "~/") {
		home, ok := env["HOME"]
		if !ok {
			return "", fmt.Errorf("cannot expand ~ in %q: HOME is not set", s)
		}
		s = home + s[1:]
	}

	var missing []string
	expanded := os.Expand(s, func(name string) string {
		if name == "$" {
			return "$"
		}
		value, ok := env[name]
		if !ok {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("undefined variable %s in %q", strings.Join(missing, ", "), s)
	}
	return expanded, nil
}

// expandAll expands every element of args.
func expandAll(args []string, env map[string]string) ([]string, error) {
	if args == nil {
		return nil, nil
	}
	out := make([]string, len(args))
	for i, arg := range args {
		value, err := Expand(arg, env)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}
