package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/ops/git"
)

func newGitCommand(a *app) *cobra.Command {
	var opts git.Options

	cmd := &cobra.Command{
		Use:   "git",
		Short: "Clone or fast-forward a git repository",
		Long: `Clone the repository into --git-path, or fetch and fast-forward it when
it already exists. Local commits that are not on the remote are never
discarded: a diverged branch is an error.

With --prune, local branches whose upstream branch was deleted on the
remote are removed, except the checked out branch.`,
		Example: `  up git --git-url https://github.com/example/dotfiles --git-path ~/code/dotfiles
  up git --git-url git@github.com:example/work.git --git-path ~/work --branch main --prune`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := engine.TaskDefinition{ID: "git", Operation: engine.GitSync{Repos: []git.Options{opts}}}
			return a.runTasks(cmd.Context(), engine.TaskSet{Parallel: []engine.TaskDefinition{task}}, engine.RunOptions{})
		},
	}

	cmd.Flags().StringVar(&opts.URL, "git-url", "", "repository URL")
	cmd.Flags().StringVar(&opts.Path, "git-path", "", "local checkout path")
	cmd.Flags().StringVar(&opts.Remote, "remote", git.DefaultRemote, "remote name")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "branch to check out and update (default: remote default branch)")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "delete local branches whose upstream is gone")
	_ = cmd.MarkFlagRequired("git-url")
	_ = cmd.MarkFlagRequired("git-path")

	return cmd
}
