package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/ops/link"
)

func newLinkCommand(a *app) *cobra.Command {
	var opts link.Options

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Symlink every file of a directory tree into another",
		Long: `Link mirrors the files under --from into --to as symbolic links,
creating directories as needed. Existing correct links are left alone.

A destination that is occupied by anything else is a conflict: nothing is
changed and the conflicting paths are reported, unless --backup-dir is set,
in which case they are moved there first.`,
		Example: `  up link --from ~/code/dotfiles --to ~
  up link --from ~/code/dotfiles --to ~ --backup-dir ~/.local/state/up/backup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := engine.TaskDefinition{ID: "link", Operation: engine.Link{Options: opts}}
			return a.runTasks(cmd.Context(), engine.TaskSet{Parallel: []engine.TaskDefinition{task}}, engine.RunOptions{})
		},
	}

	cmd.Flags().StringVarP(&opts.From, "from", "f", "", "source directory")
	cmd.Flags().StringVarP(&opts.To, "to", "t", "", "destination directory")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", "", "move conflicting files here instead of failing")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
