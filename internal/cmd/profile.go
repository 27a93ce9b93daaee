package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cswitch/internal/config"
	"cswitch/internal/profile"
	"cswitch/internal/sessionstore"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect profiles",
	}
	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileShowCmd())
	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every resolvable profile by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			r := profile.NewResolver(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, r.Listing())

			def, _ := r.Resolve(profile.DefaultName)
			fmt.Fprintf(out, "\nDefault: %s (%s)\n", def.Name, def.Kind)
			return nil
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show how a profile resolves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ref, err := profile.NewResolver(cfg).Resolve(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Profile: %s\n", ref.Name)
			fmt.Fprintf(out, "  Kind:     %s\n", ref.Kind)
			fmt.Fprintf(out, "  Settings: %s (%s)\n", ref.Launch.SettingsPath, existsLabel(config.SettingsExists(ref.Launch.SettingsPath)))
			for _, k := range slices.Sorted(maps.Keys(ref.Launch.Env)) {
				fmt.Fprintf(out, "  Env:      %s=%s\n", k, ref.Launch.Env[k])
			}
			if s, err := config.LoadSettings(ref.Launch.SettingsPath); err == nil && len(s.Env) > 0 {
				fmt.Fprintf(out, "  Settings env keys: %v\n", slices.Sorted(maps.Keys(s.Env)))
			}

			rec, err := sessionstore.New(config.SessionsFile()).Last(ref.Name)
			switch {
			case err != nil:
				fmt.Fprintf(out, "  Last session: error (%v)\n", err)
			case rec == nil:
				fmt.Fprintln(out, "  Last session: none")
			default:
				fmt.Fprintf(out, "  Last session: %s (%s, %d turns, updated %s)\n",
					rec.SessionID, formatCost(rec.TotalCost), rec.Turns, humanize.Time(rec.LastUpdated))
			}
			return nil
		},
	}
}

func existsLabel(ok bool) string {
	if ok {
		return "exists"
	}
	return "missing"
}

func formatCost(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}
