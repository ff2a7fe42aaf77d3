package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/cmd-notebook/internal/notebook/config"
	"github.com/example/cmd-notebook/internal/notebook/watch"
)

func newWatchCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print configuration changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, cancel := context.WithCancel(parent)
			defer cancel()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(signals)

			var mu sync.Mutex
			report := func(cfg config.Config) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(stdout, "config changed: data_dir=%s backup_count=%d\n", cfg.DataDir, cfg.BackupCount)
			}

			w := watch.New(mgr.Config(), mgr.Logger())
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer cancel()
				return w.Run(gctx, report)
			})
			g.Go(func() error {
				select {
				case sig := <-signals:
					mgr.Logger().Info("watch: signal received", "signal", sig.String())
					cancel()
				case <-gctx.Done():
				}
				return nil
			})

			if path, err := mgr.Config().Path(); err == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl-C to stop)\n", path)
			}
			return g.Wait()
		},
	}
}
