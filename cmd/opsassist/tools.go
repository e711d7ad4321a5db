package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/operous/opsassist/config"
	agentcore "github.com/operous/opsassist/internal/agent/core"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the enabled tools and their functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		orch, err := agentcore.NewOrchestrator(cfg)
		if err != nil {
			return err
		}

		reg := orch.Registry()
		for _, tool := range reg.Tools() {
			fmt.Println(tool)
			for _, card := range reg.Functions(tool) {
				fmt.Printf("  %s(%s)\n      %s\n", card.Function, strings.Join(card.Parameters, ", "), card.Description)
			}
		}
		return nil
	},
}
