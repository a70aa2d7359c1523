package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/layerforge/layerforge/internal/api"
	"github.com/layerforge/layerforge/pkg/cache"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		manifestPath string
		addr         string
		redisAddr    string
		noCache      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation engine over HTTP",
		Long: `Serve a loaded project over HTTP. Generation runs stream their
progress as NDJSON; see POST /api/v1/generate.`,
		Example: `  layerforge serve -m project.toml --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(manifestPath)
			if err != nil {
				return err
			}

			store := newCache(noCache)
			if redisAddr != "" {
				rc, err := cache.NewRedisCache(cmd.Context(), cache.RedisConfig{
					Addr:   redisAddr,
					Prefix: appName + ":",
				})
				if err != nil {
					return err
				}
				defer rc.Close()
				store = rc
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           api.New(m, store, c.Logger).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()
			printInfo("Serving %s on %s", manifestPath, addr)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return err
				}
				if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "project.toml", "project manifest file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "redis address for a shared resource cache (host:port)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the trait buffer cache")

	return cmd
}
