package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layerforge/layerforge/pkg/generate"
)

// validateCommand creates the validate command.
func (c *CLI) validateCommand() *cobra.Command {
	var (
		manifestPath string
		size         int
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a project manifest and report uniqueness capacity",
		Example: `  # Check constraint references and show capacity headroom
  layerforge validate -m project.toml

  # Also verify a planned collection size fits
  layerforge validate -m project.toml --size 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(manifestPath)
			if err != nil {
				return err
			}

			p := m.Project()
			traits := 0
			for _, l := range m.Layers() {
				traits += len(l.Traits)
			}

			printSuccess("Manifest is valid")
			printKeyValue("Project", p.Name)
			printKeyValue("Layers", fmt.Sprintf("%d", len(m.Layers())))
			printKeyValue("Traits", fmt.Sprintf("%d", traits))
			printKeyValue("Rules", fmt.Sprintf("%d", len(p.Rules)))

			reports := generate.CapacityReports(m)
			if len(reports) == 0 {
				printDetail("No active uniqueness combinations")
			}
			for _, r := range reports {
				printKeyValue(string(r.Combination), fmt.Sprintf("capacity %d over %d layers", r.Capacity, len(r.Layers)))
			}

			if size > 0 {
				if err := generate.CheckCapacity(m, size); err != nil {
					return err
				}
				printSuccess("Size %d fits every active combination", size)
			}

			printNextStep("Generate", fmt.Sprintf("layerforge generate -m %s -o out --size N", manifestPath))
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "project.toml", "project manifest file")
	cmd.Flags().IntVar(&size, "size", 0, "planned collection size to pre-check")

	return cmd
}
