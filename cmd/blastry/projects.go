package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/blastry/internal/campaign"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Project management commands",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE:  runProjectsList,
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	rootCmd.AddCommand(projectsCmd)
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projects := campaign.NewStore(st, cfg.Identity.UID, logger)
	if err := projects.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to load projects: %w", err)
	}
	defer projects.Close()

	active, _ := projects.Active()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODE\tEVENT\tACTIVE")
	fmt.Fprintln(w, "--\t----\t----\t-----\t------")
	for _, p := range projects.Snapshot() {
		mark := ""
		if p.ID == active.ID {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.SendMode, p.EventID, mark)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d projects\n", len(projects.Snapshot()))
	return nil
}
