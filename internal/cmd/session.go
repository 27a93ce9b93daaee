package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cswitch/internal/config"
	"cswitch/internal/sessionstore"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage remembered delegation sessions",
	}
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionClearCmd())
	cmd.AddCommand(newSessionSweepCmd())
	return cmd
}

func openSessionStore() (*sessionstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return sessionstore.New(config.SessionsFile(),
		sessionstore.WithRetention(cfg.Delegation.SessionRetention)), nil
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the last session of each profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore()
			if err != nil {
				return err
			}
			recs, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROFILE\tSESSION\tCOST\tTURNS\tUPDATED\tCWD")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.Profile, r.SessionID, formatCost(r.TotalCost), r.Turns, humanize.Time(r.LastUpdated), r.Cwd)
			}
			return w.Flush()
		},
	}
}

func newSessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [profile]",
		Short: "Forget the last session of one profile, or of all profiles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if err := store.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared session for %s.\n", args[0])
				return nil
			}
			recs, err := store.List()
			if err != nil {
				return err
			}
			for _, r := range recs {
				if err := store.Delete(r.Profile); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Cleared %d session(s).\n", len(recs))
			return nil
		},
	}
}

func newSessionSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove sessions older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore()
			if err != nil {
				return err
			}
			n, err := store.SweepExpired()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s).\n", n)
			return nil
		},
	}
}

