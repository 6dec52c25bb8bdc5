package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const initConfigTemplate = `# Salvo project configuration
default_adapter: openai
scenarios_dir: scenarios
storage_dir: .salvo

judge:
  adapter: openai
  model: gpt-4o-mini
  k: 3

recording:
  mode: full
`

const initScenarioTemplate = `description: Example scenario exercising a single search tool
adapter: openai
model: gpt-4o-mini
system_prompt: You are a helpful assistant with access to a search tool.
prompt: Find the current population of Iceland and summarize it in one sentence.
max_turns: 5
threshold: 0.8

tools:
  - name: search
    description: Search the web for a query.
    parameters:
      type: object
      properties:
        query:
          type: string
      required: [query]
    mock_response: "Iceland's population is approximately 387,000 (2024 estimate)."

assertions:
  - type: tool_called
    tool: search
    required: true
  - type: output_contains
    value: "387,000"
  - type: latency_limit
    max_seconds: 60
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a Salvo project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			scenariosDir := filepath.Join(root, "scenarios")
			if err := os.MkdirAll(scenariosDir, 0o755); err != nil {
				return fmt.Errorf("init: %w", err)
			}

			files := map[string]string{
				filepath.Join(root, "salvo.yaml"):           initConfigTemplate,
				filepath.Join(scenariosDir, "example.yaml"): initScenarioTemplate,
			}
			for path, content := range files {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "skip %s (exists)\n", path)
					continue
				}
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return fmt.Errorf("init: write %q: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\nNext: set OPENAI_API_KEY and run `salvo run scenarios/example.yaml -n 3`")
			return nil
		},
	}
}
