package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/layerforge/layerforge/pkg/compose"
	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/model"
)

// previewCommand creates the preview command, which composites a single
// base/overlay trait pair without running a generation session.
func (c *CLI) previewCommand() *cobra.Command {
	var (
		manifestPath string
		baseID       string
		overlayID    string
		outPath      string
		width        int
		height       int
		noCache      bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Composite two traits into a reduced-size preview image",
		Example: `  # Preview a body/hat pairing at the default 200x200
  layerforge preview -m project.toml --base body-round --overlay hat-crown -o preview.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(manifestPath)
			if err != nil {
				return err
			}

			base := m.Trait(model.TraitID(baseID))
			if base == nil {
				return errors.New(errors.ErrCodeNotFound, "unknown base trait %q", baseID)
			}
			overlay := m.Trait(model.TraitID(overlayID))
			if overlay == nil {
				return errors.New(errors.ErrCodeNotFound, "unknown overlay trait %q", overlayID)
			}

			engine := compose.NewEngine(newCache(noCache), nil)
			data, err := engine.Preview(cmd.Context(), base.Image, overlay.Image, width, height)
			if err != nil {
				return err
			}

			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			printSuccess("Preview written")
			printFile(outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "project.toml", "project manifest file")
	cmd.Flags().StringVar(&baseID, "base", "", "base trait ID (required)")
	cmd.Flags().StringVar(&overlayID, "overlay", "", "overlay trait ID (required)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "preview.png", "output file")
	cmd.Flags().IntVar(&width, "width", 200, "preview width")
	cmd.Flags().IntVar(&height, "height", 200, "preview height")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the trait buffer cache")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("overlay")

	return cmd
}
