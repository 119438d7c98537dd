package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korora-tech/dhd/pkg/facts"
)

func newFactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Collect and print host facts",
		Long: `Facts collects the same host snapshot planning uses: OS release,
kernel, architecture, current user, hardware, and the detected
package manager. Conditions match against these values via
property() paths like os.distro or user.name.`,
		Example: `  # Print the facts snapshot
  dhd facts

  # As JSON for scripting
  dhd facts --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			snap := facts.Collect(ctx, app.runner)
			if jsonOutput {
				return printJSON(snap)
			}

			fmt.Printf("os.family        %s\n", snap.OS.Family)
			fmt.Printf("os.distro        %s\n", snap.OS.Distro)
			fmt.Printf("os.version       %s\n", snap.OS.Version)
			fmt.Printf("os.codename      %s\n", snap.OS.Codename)
			fmt.Printf("os.kernel        %s\n", snap.OS.Kernel)
			fmt.Printf("os.arch          %s\n", snap.OS.Arch)
			fmt.Printf("os.hostname      %s\n", snap.OS.Hostname)
			fmt.Printf("user.name        %s\n", snap.User.Name)
			fmt.Printf("user.home        %s\n", snap.User.Home)
			fmt.Printf("user.shell       %s\n", snap.User.Shell)
			fmt.Printf("user.uid         %s\n", snap.User.UID)
			fmt.Printf("hardware.cpus    %d\n", snap.Hardware.CPUs)
			fmt.Printf("pkg_manager      %s\n", snap.PkgManager)
			return nil
		},
	}

	return cmd
}
