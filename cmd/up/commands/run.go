package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/up/pkg/config"
	"github.com/openfroyo/up/pkg/engine"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		bootstrap bool
		tasks     []string
		exclude   []string
		console   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured tasks",
		Long: `Run tasks from the tasks directory next to up.yaml.

Without --tasks every task with auto_run enabled runs. With --bootstrap the
tasks listed in bootstrap_tasks (or marked bootstrap) run first, one at a
time, and a failure stops the run unless --keep-going is set.

Each task reports whether it changed anything. The exit code is 0 when no
task failed, 1 when any task failed and 130 when the run was interrupted.`,
		Example: `  # Run every auto_run task
  up run

  # First-time setup of a new machine
  up run --bootstrap

  # Run two tasks, streaming their output
  up run --tasks brew,dotfiles --console

  # Run everything except the repositories
  up run --exclude-tasks repos`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			opts := engine.RunOptions{
				KeepGoing:   cfg.Runtime.KeepGoing,
				Bootstrap:   bootstrap,
				Include:     tasks,
				Exclude:     exclude,
				Concurrency: cfg.Runtime.Concurrency,
			}
			if cmd.Flags().Changed("console") {
				opts.Console = &console
			}

			set, err := engine.Select(cfg.Tasks, opts)
			if err != nil {
				return err
			}
			a.tel.Logger.Debugf("selected %d of %d tasks", set.Len(), len(cfg.Tasks))
			return a.runTasks(cmd.Context(), set, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&bootstrap, "bootstrap", "b", false, "run bootstrap tasks first, in order")
	flags.Bool("keep-going", false, "keep running after a bootstrap task fails")
	flags.StringSliceVarP(&tasks, "tasks", "t", nil, "run only these tasks")
	flags.StringSliceVarP(&exclude, "exclude-tasks", "e", nil, "never run these tasks")
	flags.BoolVar(&console, "console", false, "stream task output instead of capturing it")
	flags.IntP("concurrency", "j", 0, "maximum tasks run at once (default one per CPU)")
	_ = a.v.BindPFlag(config.KeyKeepGoing, flags.Lookup("keep-going"))
	_ = a.v.BindPFlag(config.KeyConcurrency, flags.Lookup("concurrency"))

	return cmd
}
