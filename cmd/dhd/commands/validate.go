package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korora-tech/dhd/pkg/modules"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Check module sources without planning",
		Long: `Validate extracts every .dhd source and reports syntax errors,
unknown actions, invalid arguments, and duplicate module names.
Nothing touches the host.`,
		Example: `  # Validate the configured module directory
  dhd validate

  # Validate another directory
  dhd validate ./staging`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			dir := app.settings.ModuleDir
			if len(args) > 0 {
				dir = args[0]
			}

			srcs, err := modules.DiscoverSources(dir)
			if err != nil {
				return err
			}
			if len(srcs) == 0 {
				return fmt.Errorf("no %s sources found under %s", modules.SourceExt, dir)
			}

			mods, errs := modules.NewExtractor(modules.DefaultContext()).ExtractAll(srcs)
			if len(errs) > 0 {
				for _, e := range errs {
					fmt.Println(e)
				}
				return errors.New("validation failed")
			}

			if jsonOutput {
				return printJSON(mods)
			}
			fmt.Printf("%d module(s) in %d source(s), all valid\n", len(mods), len(srcs))
			for i := range mods {
				fmt.Printf("  %-24s %d action(s)\n", mods[i].Name, len(mods[i].Actions))
			}
			return nil
		},
	}

	return cmd
}
