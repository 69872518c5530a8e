package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"lexdraft/api/internal/store"
)

// newReconcileCmd lists documents whose newest version never reached the
// document row, which happens when the process dies between the two writes.
func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Report versions that were appended but not applied to their document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePostgres(); err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.DefaultPoolConfig())
			if err != nil {
				return err
			}
			defer db.Close()

			orphans, err := store.NewPostgresStore(db).OrphanVersions(cmd.Context())
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				cmd.Println("no orphan versions")
				return nil
			}
			cmd.Printf("%s\n", renderOrphans(orphans))
			return nil
		},
	}
}

func renderOrphans(orphans []store.OrphanVersion) string {
	tw := table.NewWriter()
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.SeparateFooter = false
	tw.Style().Options.SeparateHeader = false
	tw.Style().Options.SeparateRows = false
	tw.AppendHeader(table.Row{
		"DOCUMENT",
		"VERSION",
		"VERSION CREATED",
		"DOCUMENT UPDATED",
	})
	for _, orphan := range orphans {
		tw.AppendRow(table.Row{
			orphan.DocumentID,
			orphan.Version,
			orphan.VersionCreatedAt.Format(time.RFC3339),
			orphan.DocumentUpdatedAt.Format(time.RFC3339),
		})
	}
	return tw.Render()
}
