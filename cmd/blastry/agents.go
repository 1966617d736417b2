package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/blastry/internal/agent"
	"github.com/foxzi/blastry/internal/phone"
)

var agentsCreateName string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Sender agent management commands",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sender agents",
	RunE:  runAgentsList,
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new sender agent",
	RunE:  runAgentsCreate,
}

var agentsReviveCmd = &cobra.Command{
	Use:   "revive",
	Short: "Ask every enabled agent to ensure its process is running",
	RunE:  runAgentsRevive,
}

func init() {
	agentsCreateCmd.Flags().StringVar(&agentsCreateName, "name", "", "Agent name (default: next free server slot)")

	agentsCmd.AddCommand(agentsListCmd, agentsCreateCmd, agentsReviveCmd)
	rootCmd.AddCommand(agentsCmd)
}

func openAgents() (*agent.Registry, func(), error) {
	cfg, st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := agent.Open(context.Background(), st, agent.Defaults{
		DailyLimit:  cfg.Agents.DailyLimit,
		SendDelayMs: cfg.Agents.SendDelayMs,
	}, logger, nil)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to open agent registry: %w", err)
	}

	cleanup := func() {
		reg.Close()
		st.Close()
	}
	return reg, cleanup, nil
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	reg, cleanup, err := openAgents()
	if err != nil {
		return err
	}
	defer cleanup()

	agents := reg.List("", agent.FilterAll)
	if len(agents) == 0 {
		fmt.Println("No agents registered")
		return nil
	}

	today := phone.Today()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED\tSTATUS\tPHASE\tSENT TODAY\tLIMIT\tDELAY MS")
	fmt.Fprintln(w, "--\t-------\t------\t-----\t----------\t-----\t--------")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%d\t%d\t%d\n",
			a.ID, a.Enabled, a.Status, a.Phase(), a.SentToday(today), a.DailyLimit, a.SendDelayMs)
	}
	w.Flush()

	stats := reg.Stats()
	fmt.Printf("\nTotal: %d agents (%d online, %d disabled)\n", stats.Total, stats.Online, stats.Disabled)
	return nil
}

func runAgentsCreate(cmd *cobra.Command, args []string) error {
	reg, cleanup, err := openAgents()
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := reg.Create(context.Background(), agentsCreateName)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	fmt.Printf("Agent %s created (daily limit %d, send delay %dms)\n", a.ID, a.DailyLimit, a.SendDelayMs)
	return nil
}

func runAgentsRevive(cmd *cobra.Command, args []string) error {
	reg, cleanup, err := openAgents()
	if err != nil {
		return err
	}
	defer cleanup()

	revived, err := reg.ReviveAll(context.Background())
	if err != nil {
		fmt.Printf("Revived %d agents with errors: %v\n", revived, err)
		return nil
	}

	fmt.Printf("Revived %d agents\n", revived)
	return nil
}
