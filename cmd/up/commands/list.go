package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/report"
)

func newListCommand(a *app) *cobra.Command {
	var (
		bootstrap bool
		tasks     []string
		exclude   []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks a run would execute",
		Long: `List tasks after applying the same selection as run. Bootstrap tasks
are listed first, in the order they run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			set, err := engine.Select(cfg.Tasks, engine.RunOptions{
				Bootstrap: bootstrap,
				Include:   tasks,
				Exclude:   exclude,
			})
			if err != nil {
				return err
			}
			selected := append(append([]engine.TaskDefinition{}, set.Bootstrap...), set.Parallel...)

			if a.v.GetBool(keyJSON) {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(selected)
			}
			report.RenderTaskList(a.stdout, selected)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&bootstrap, "bootstrap", "b", false, "include bootstrap tasks first")
	flags.StringSliceVarP(&tasks, "tasks", "t", nil, "list only these tasks")
	flags.StringSliceVarP(&exclude, "exclude-tasks", "e", nil, "leave out these tasks")

	return cmd
}
