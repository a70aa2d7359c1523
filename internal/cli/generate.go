package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/generate"
	"github.com/layerforge/layerforge/pkg/manifest"
	"github.com/layerforge/layerforge/pkg/model"
)

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	var (
		manifestPath string
		outDir       string
		size         int
		seed         uint64
		width        int
		height       int
		chunk        int
		noCache      bool
		metadataOnly bool
		plain        bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a collection from a project manifest",
		Example: `  # Generate 100 items into ./out
  layerforge generate -m project.toml -o out --size 100

  # Reproducible run with a pinned seed
  layerforge generate -m project.toml -o out --size 100 --seed 7

  # Metadata only, no image compositing
  layerforge generate -m project.toml -o out --size 100 --metadata-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(manifestPath)
			if err != nil {
				return err
			}

			sess, err := generate.NewSession(m, generate.Options{
				Size:         size,
				Seed:         seed,
				OutputWidth:  width,
				OutputHeight: height,
				ChunkSize:    chunk,
				SkipCompose:  metadataOnly,
				Cache:        newCache(noCache),
				Logger:       c.Logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			type outcome struct {
				items []generate.Item
				err   error
			}
			done := make(chan outcome, 1)
			tracker := newProgress(c.Logger)
			go func() {
				items, err := sess.Run(ctx)
				done <- outcome{items, err}
			}()

			if plain || !isTerminal(os.Stderr) {
				for ev := range sess.Events() {
					if ev.Type == generate.EventProgress {
						c.Logger.Info("progress", "generated", ev.Generated, "total", ev.Total)
					}
				}
			} else {
				view := newGenProgressModel(sess.Events(), size, cancel)
				if _, err := tea.NewProgram(view, tea.WithOutput(os.Stderr)).Run(); err != nil {
					// fall back to draining the stream so Run can finish
					for range sess.Events() {
					}
				}
			}

			out := <-done

			written, werr := writeItems(outDir, out.items)
			if werr != nil {
				return werr
			}
			if written > 0 {
				if err := writeCollection(outDir, m.Project(), seed, size, out.items); err != nil {
					return err
				}
				written++
			}

			switch {
			case out.err == nil:
				tracker.done(fmt.Sprintf("Generated %d items", len(out.items)))
				printSuccess("Collection complete")
			case errors.GetCode(out.err) == errors.ErrCodeCancelled:
				printWarning("Cancelled after %d of %d items", len(out.items), size)
			default:
				printError("%s", errors.UserMessage(out.err))
				if len(out.items) > 0 {
					printWarning("Partial output: %d of %d items were generated before the failure", len(out.items), size)
				}
				return out.err
			}

			if written > 0 {
				printDetail("Wrote %d files", written)
				printFile(outDir)
			}
			return out.err
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "project.toml", "project manifest file")
	cmd.Flags().StringVarP(&outDir, "output", "o", "out", "output directory")
	cmd.Flags().IntVar(&size, "size", 0, "collection size (required)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default derived)")
	cmd.Flags().IntVar(&width, "width", 0, "output image width")
	cmd.Flags().IntVar(&height, "height", 0, "output image height")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "pin the scheduler chunk size (default adaptive)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the trait buffer cache")
	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "skip image compositing")
	cmd.Flags().BoolVar(&plain, "plain", false, "log progress lines instead of the live display")
	_ = cmd.MarkFlagRequired("size")

	return cmd
}

// loadModel reads a manifest and builds the constraint model.
func loadModel(path string) (*model.ConstraintModel, error) {
	p, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	return model.NewConstraintModel(p)
}

// writeItems persists generated items as NNNN.png and NNNN.json pairs.
// Partial results from a failed run are written the same way.
func writeItems(dir string, items []generate.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	written := 0
	for _, it := range items {
		base := filepath.Join(dir, fmt.Sprintf("%04d", it.Index))
		if len(it.Image) > 0 {
			if err := os.WriteFile(base+".png", it.Image, 0o644); err != nil {
				return written, fmt.Errorf("write %s.png: %w", base, err)
			}
			written++
		}
		meta, err := json.MarshalIndent(it.Metadata, "", "  ")
		if err != nil {
			return written, fmt.Errorf("marshal metadata %d: %w", it.Index, err)
		}
		if err := os.WriteFile(base+".json", meta, 0o644); err != nil {
			return written, fmt.Errorf("write %s.json: %w", base, err)
		}
		written++
	}
	return written, nil
}

// collectionManifest is the collection-level summary written next to the
// per-item files.
type collectionManifest struct {
	Name      string           `json:"name"`
	Requested int              `json:"requested"`
	Generated int              `json:"generated"`
	Seed      uint64           `json:"seed"`
	Items     []model.Metadata `json:"items"`
}

// writeCollection persists collection.json summarizing the run.
func writeCollection(dir string, p model.Project, seed uint64, requested int, items []generate.Item) error {
	if seed == 0 {
		seed = generate.DefaultSeed
	}
	cm := collectionManifest{
		Name:      p.Name,
		Requested: requested,
		Generated: len(items),
		Seed:      seed,
	}
	for _, it := range items {
		cm.Items = append(cm.Items, it.Metadata)
	}
	data, err := json.MarshalIndent(cm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal collection manifest: %w", err)
	}
	path := filepath.Join(dir, "collection.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
