package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openfroyo/up/pkg/config"
	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/ops/git"
)

func newGenerateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate task files from the current machine",
	}
	cmd.AddCommand(newGenerateGitCommand(a))
	return cmd
}

func newGenerateGitCommand(a *app) *cobra.Command {
	var opts git.GenerateOptions

	cmd := &cobra.Command{
		Use:   "git",
		Short: "Write a git task listing existing checkouts",
		Long: `Search directories for git checkouts and write them, with their remote,
to a task file that "up run" can keep in sync. Other fields of an existing
task file are kept.`,
		Example: `  up generate git --path ~/.config/up/tasks/repos.yaml --search-paths ~/code
  up generate git --path repos.yaml --search-paths ~/code --excludes /tmp/ --remote-order upstream,origin --prune`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.BuildEnv(os.Environ(), nil, nil)
			if err != nil {
				return err
			}
			paths := append([]*string{&opts.Path}, stringPtrs(opts.SearchPaths)...)
			for _, p := range paths {
				expanded, err := config.Expand(*p, env)
				if err != nil {
					return fmt.Errorf("invalid path %q: %w", *p, err)
				}
				if *p, err = filepath.Abs(expanded); err != nil {
					return err
				}
			}

			task := engine.TaskDefinition{ID: "generate_git", Operation: engine.GenerateGit{Targets: []git.GenerateOptions{opts}}}
			return a.runTasks(cmd.Context(), engine.TaskSet{Parallel: []engine.TaskDefinition{task}}, engine.RunOptions{})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Path, "path", "", "task file to create or update")
	flags.StringSliceVar(&opts.SearchPaths, "search-paths", []string{"~"}, "directories to search for checkouts")
	flags.StringSliceVar(&opts.Excludes, "excludes", nil, "skip checkouts whose path contains any of these")
	flags.BoolVar(&opts.Prune, "prune", false, "set prune on every generated repository")
	flags.StringSliceVar(&opts.RemoteOrder, "remote-order", nil, "preferred remote names, best first")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}

func stringPtrs(s []string) []*string {
	ptrs := make([]*string, len(s))
	for i := range s {
		ptrs[i] = &s[i]
	}
	return ptrs
}
