package cmd

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/DevLabFoundry/zaws/internal/credentialexchange"
	ps "github.com/mitchellh/go-ps"
	"github.com/spf13/cobra"
)

type clearFlags struct {
	force bool
}

func newClearCmd(r *Root) {
	flags := &clearFlags{}

	cmd := &cobra.Command{
		Use:   "clear-cache <flags>",
		Short: "Clears the cached bearer token from the OS secret store",
		Long: `Clears the cached bearer token from the OS secret store.
NB: Occassionally you may encounter a hanging chromium process from an
interrupted browser login, use --force to reap those as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			usr, err := user.Current()
			if err != nil {
				return err
			}
			store, err := credentialexchange.NewTokenStore(os.TempDir(), usr.Username)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				fmt.Fprint(cmd.OutOrStderr(), err.Error())
			}

			if flags.force {
				return reapBrowserProcesses(cmd)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.force, "force", "f", false, `If zaws exited improperly in a previous run there is a chance that there could be hanging browser processes left over.

This will forcefully kill all chromium processes.

If you are on a machine that uses a chromium based browser as your current/main browser this will also kill those processes.

Use with caution.
`)
	r.Cmd.AddCommand(cmd)
}

func reapBrowserProcesses(cmd *cobra.Command) error {
	procs, err := ps.Processes()
	if err != nil {
		return err
	}
	for _, p := range procs {
		if !strings.Contains(strings.ToLower(p.Executable()), "chromium") {
			continue
		}
		if osproc, err := os.FindProcess(p.Pid()); err == nil && osproc != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "killing leftover browser process %d\n", p.Pid())
			_ = osproc.Kill()
		}
	}
	return nil
}
