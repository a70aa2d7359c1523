package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rulesCommand creates the rules command for visualizing the constraint graph.
func (c *CLI) rulesCommand() *cobra.Command {
	var (
		manifestPath string
		output       string
		dotOnly      bool
	)

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Render the constraint graph of a project (debug tool)",
		Long: `Render the project's constraint graph: layers as clusters, traits as
nodes, ruler rules as edges. Allow rules are solid green, forbid rules
dashed red.`,
		Example: `  # Render to SVG
  layerforge rules -m project.toml -o rules.svg

  # Emit raw DOT for external tooling
  layerforge rules -m project.toml --dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(manifestPath)
			if err != nil {
				return err
			}

			if dotOnly {
				return writeOutput([]byte(m.ToDOT()), output)
			}

			spinner := newSpinnerWithContext(cmd.Context(), "Rendering constraint graph")
			spinner.Start()
			svg, err := m.RenderSVG(cmd.Context())
			if err != nil {
				spinner.StopWithError("Render failed")
				return fmt.Errorf("render: %w", err)
			}
			spinner.Stop()

			if err := writeOutput(svg, output); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			printSuccess("Constraint graph generated")
			printKeyValue("Rules", fmt.Sprintf("%d", len(m.Project().Rules)))
			if output != "" {
				printFile(output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "project.toml", "project manifest file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&dotOnly, "dot", false, "emit DOT instead of rendering SVG")

	return cmd
}

// writeOutput writes data to path, or stdout when path is empty.
func writeOutput(data []byte, path string) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
