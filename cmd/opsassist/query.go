package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/operous/opsassist/config"
	agentcore "github.com/operous/opsassist/internal/agent/core"
)

var (
	queryTimeout time.Duration
	queryJSON    bool
	planOnly     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run a single query through the pipeline and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		orch, err := agentcore.NewOrchestrator(cfg)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		if err := orch.ValidateQuery(query); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		if planOnly {
			plan, err := orch.Plan(ctx, query)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(plan)
		}

		response, err := orch.ProcessQuery(ctx, query)
		if err != nil {
			return err
		}
		if queryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(response)
		}

		fmt.Println(response.FinalAnswer)
		fmt.Fprintf(os.Stderr, "\n%d/%d steps succeeded in %.1fs (tools: %s)\n",
			response.Metadata.SuccessfulSteps, response.Metadata.StepsExecuted,
			response.Metadata.ExecutionTime, strings.Join(response.Metadata.ToolsUsed, ", "))
		return nil
	},
}

func init() {
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Minute, "overall pipeline timeout")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the full response as JSON")
	queryCmd.Flags().BoolVar(&planOnly, "plan", false, "print the plan without executing it")
}
