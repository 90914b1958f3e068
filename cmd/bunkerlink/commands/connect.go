package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// connect <uri>: pair with a remote signer and persist the session.
func connectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <uri>",
		Short: "Pair with a remote signer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := c.app.Sessions.Connect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			user, err := adapter.GetIdentity(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Paired.\nUser:        %s\n", user)
			fmt.Fprintf(out, "Fingerprint: %s\n", c.app.IDs.FingerprintKey(user))
			for _, r := range adapter.Relays() {
				fmt.Fprintf(out, "Relay:       %s\n", r)
			}
			return nil
		},
	}
}

// disconnect: drop the session and forget it.
func disconnectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the paired remote signer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Sessions.Disconnect(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected.")
			return nil
		},
	}
}
