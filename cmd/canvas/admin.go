package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/canvas/auth"
	"github.com/hazyhaar/canvas/config"
	"github.com/hazyhaar/canvas/export"
	"github.com/hazyhaar/canvas/mutlog"
	"github.com/hazyhaar/canvas/session"
	"github.com/hazyhaar/canvas/shield"
)

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Manage owner accounts",
}

var ownerAddCmd = &cobra.Command{
	Use:   "add [email]",
	Short: "Create an owner with a password",
	Args:  cobra.ExactArgs(1),
	RunE:  runOwnerAdd,
}

var ownerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List owners",
	Args:  cobra.NoArgs,
	RunE:  runOwnerList,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List page sessions of every owner",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Render a session's saved layout to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply retention to request logs, events and the mutation log",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

var maintenanceCmd = &cobra.Command{
	Use:       "maintenance [on|off]",
	Short:     "Toggle maintenance mode on running servers",
	Long:      `Servers poll the flag, so the change reaches every process sharing the database within a few seconds.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runMaintenance,
}

var (
	ownerName      string
	ownerPassword  string
	exportFormat   string
	maintenanceMsg string
)

func init() {
	ownerAddCmd.Flags().StringVar(&ownerName, "name", "", "display name")
	ownerAddCmd.Flags().StringVar(&ownerPassword, "password", os.Getenv("CANVAS_OWNER_PASSWORD"), "password (default $CANVAS_OWNER_PASSWORD)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "html", "html or md")
	maintenanceCmd.Flags().StringVarP(&maintenanceMsg, "message", "m", "", "message shown to visitors")

	ownerCmd.AddCommand(ownerAddCmd, ownerListCmd)
	rootCmd.AddCommand(ownerCmd, sessionsCmd, exportCmd, pruneCmd, maintenanceCmd)
}

func runOwnerAdd(cmd *cobra.Command, args []string) error {
	return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
		o, err := auth.NewOwners(db).Add(ctx, args[0], ownerName, ownerPassword)
		if err != nil {
			return err
		}
		cmd.Printf("owner %s created (%s)\n", o.Email, o.ID)
		return nil
	})
}

func runOwnerList(cmd *cobra.Command, _ []string) error {
	return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
		owners, err := auth.NewOwners(db).List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tPROVIDER\tCREATED")
		for _, o := range owners {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.Email, o.DisplayName, o.Provider, stamp(o.CreatedAt))
		}
		return tw.Flush()
	})
}

func runSessions(cmd *cobra.Command, _ []string) error {
	return withDB(cmd, func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
		owners, err := auth.NewOwners(db).List(ctx)
		if err != nil {
			return err
		}
		store := session.NewStore(db)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tOWNER\tNODES\tUPDATED\tSHARE")
		for _, o := range owners {
			list, err := store.ListByOwner(ctx, o.ID)
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", s.ID, s.Name, o.Email, s.Nodes, stamp(s.UpdatedAt), session.ShareURL(cfg.PublicURL, s.ID))
			}
		}
		return tw.Flush()
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
		s, err := session.NewStore(db).Get(ctx, args[0])
		if err != nil {
			return err
		}
		return export.Write(cmd.OutOrStdout(), format, s.Name, s.Layout)
	})
}

func runPrune(cmd *cobra.Command, _ []string) error {
	return withDB(cmd, func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
		n, err := prune(ctx, cfg, mutlog.NewStore(db))
		if err != nil {
			return err
		}
		cmd.Printf("pruned %d mutations older than %s\n", n, cfg.MutationRetention)
		return nil
	})
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	var active bool
	switch args[0] {
	case "on":
		active = true
	case "off":
	default:
		return fmt.Errorf("maintenance: want on or off, got %q", args[0])
	}
	return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
		if err := shield.SetMaintenance(ctx, db, active, maintenanceMsg); err != nil {
			return err
		}
		cmd.Printf("maintenance %s\n", args[0])
		return nil
	})
}

func stamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.DateTime)
}
