package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/merge"
	"github.com/openfroyo/up/pkg/ops/defaults"
)

func newDefaultsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Read and write stored preferences",
		Long: `Preferences are structured values stored per domain and key. Values are
written as YAML. A "..." item in a list, or a "...": "..." entry in a
mapping, splices in the stored value instead of replacing it.`,
	}

	cmd.AddCommand(newDefaultsReadCommand(a))
	cmd.AddCommand(newDefaultsWriteCommand(a))
	cmd.AddCommand(newDefaultsDeleteCommand(a))
	return cmd
}

func newDefaultsReadCommand(a *app) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "read [domain] [key]",
		Short: "Print stored preferences",
		Long: `Print one value, every key of a domain, or the list of domains when no
domain is given.`,
		Example: `  up defaults read
  up defaults read com.apple.dock
  up defaults read com.apple.dock persistent-apps
  up defaults read -g AppleShowAllExtensions`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if global {
				args = append([]string{defaults.GlobalDomain}, args...)
			}
			if len(args) > 2 {
				return fmt.Errorf("too many arguments")
			}

			ctx := cmd.Context()
			store, err := a.openDefaultsStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			switch len(args) {
			case 0:
				domains, err := store.Domains(ctx)
				if err != nil {
					return err
				}
				for _, d := range domains {
					fmt.Fprintln(a.stdout, d)
				}
				return nil

			case 1:
				prefs, err := store.ListDomain(ctx, args[0])
				if err != nil {
					return err
				}
				if len(prefs) == 0 {
					return fmt.Errorf("domain %s does not exist", args[0])
				}
				entries := make([]merge.Entry, 0, len(prefs))
				for _, p := range prefs {
					entries = append(entries, merge.E(p.Key, p.Value))
				}
				return printValue(a, merge.Map(entries...))

			default:
				value, ok, err := defaults.NewWriter(store, a.tel.Logger).Read(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("key %s does not exist in domain %s", args[1], args[0])
				}
				return printValue(a, value)
			}
		},
	}

	cmd.Flags().BoolVarP(&global, "global", "g", false, "read the global domain")
	return cmd
}

func newDefaultsWriteCommand(a *app) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "write <domain> <key> <value>",
		Short: "Merge a value into a stored preference",
		Example: `  up defaults write com.apple.dock autohide true
  up defaults write com.apple.dock persistent-apps '["...", "Safari"]'
  up defaults write -g NSUserKeyEquivalents '{"...": "...", "Lock Screen": "@^q"}'`,
		Args: func(cmd *cobra.Command, args []string) error {
			want := 3
			if global {
				want = 2
			}
			if len(args) != want {
				return fmt.Errorf("accepts %d arg(s), received %d", want, len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := defaults.Write{Global: global}
			if global {
				w.Key = args[0]
			} else {
				w.Domain, w.Key = args[0], args[1]
			}
			value, err := merge.ParseString(args[len(args)-1])
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			w.Value = value

			task := engine.TaskDefinition{
				ID:        "defaults",
				Operation: engine.DefaultsWrite{Writes: []defaults.Write{w}},
			}
			return a.runTasks(cmd.Context(), engine.TaskSet{Parallel: []engine.TaskDefinition{task}}, engine.RunOptions{})
		},
	}

	cmd.Flags().BoolVarP(&global, "global", "g", false, "write to the global domain")
	return cmd
}

func newDefaultsDeleteCommand(a *app) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "delete <domain> <key>",
		Short: "Remove a stored preference",
		Example: `  up defaults delete com.apple.dock autohide
  up defaults delete -g AppleShowAllExtensions`,
		Args: func(cmd *cobra.Command, args []string) error {
			want := 2
			if global {
				want = 1
			}
			if len(args) != want {
				return fmt.Errorf("accepts %d arg(s), received %d", want, len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if global {
				args = append([]string{defaults.GlobalDomain}, args...)
			}

			ctx := cmd.Context()
			store, err := a.openDefaultsStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, ok, err := store.Read(ctx, args[0], args[1]); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("key %s does not exist in domain %s", args[1], args[0])
			}
			if err := store.Delete(ctx, args[0], args[1]); err != nil {
				return err
			}
			a.tel.Logger.Infof("deleted %s %s", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&global, "global", "g", false, "delete from the global domain")
	return cmd
}

func printValue(a *app, v merge.Value) error {
	data, err := merge.MarshalYAML(v)
	if err != nil {
		return err
	}
	_, err = a.stdout.Write(data)
	return err
}
