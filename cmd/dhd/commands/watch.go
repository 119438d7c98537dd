package commands

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/korora-tech/dhd/pkg/engine"
	"github.com/korora-tech/dhd/pkg/modules"
)

const watchDebounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var (
		names   []string
		tags    []string
		allTags bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-apply whenever module sources change",
		Long: `Watch converges once, then watches the module directory and
re-applies after every change to a .dhd source. Edits arriving in
quick succession are coalesced into one run. Stop with Ctrl-C.`,
		Example: `  # Keep the host converged while editing modules
  dhd watch

  # Watch in dry-run mode to preview edits
  dhd watch --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			sel := selectionFlags(names, tags, allTags)

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			if err := watchTree(watcher, app.settings.ModuleDir); err != nil {
				return err
			}
			app.logger.Info().Str("dir", app.settings.ModuleDir).Msg("watching module sources")

			applyOnce(ctx, app, sel, dryRun)

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&fsnotify.Create != 0 {
						if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
							_ = watchTree(watcher, event.Name)
						}
					}
					if !strings.HasSuffix(event.Name, modules.SourceExt) {
						continue
					}
					app.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("source changed")
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(watchDebounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})

				case <-pending:
					applyOnce(ctx, app, sel, dryRun)

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					app.logger.Warn().Err(err).Msg("watch error")

				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().StringSliceVarP(&names, "module", "m", nil, "select modules by name")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "select modules by tag")
	cmd.Flags().BoolVar(&allTags, "all-tags", false, "require all given tags instead of any")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "plan on change instead of applying")

	return cmd
}

// applyOnce runs one converge pass and reports errors without
// stopping the watch loop.
func applyOnce(ctx context.Context, app *app, sel engine.Selection, dryRun bool) {
	report, err := runApply(ctx, app, sel, dryRun)
	if err != nil {
		app.logger.Error().Err(err).Msg("run failed")
		return
	}
	printReport(os.Stdout, report)
}

// watchTree registers dir and every directory below it, skipping
// hidden ones the way source discovery does.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != dir {
			return fs.SkipDir
		}
		return watcher.Add(path)
	})
}
