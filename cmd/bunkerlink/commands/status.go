package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := c.app.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:        %s\n", st.State)
			if st.Err != nil {
				fmt.Fprintf(out, "Error:        %v\n", st.Err)
			}
			if !st.Paired {
				return nil
			}
			fmt.Fprintf(out, "Remote:       %s\n", st.Session.RemoteKey)
			fmt.Fprintf(out, "User:         %s\n", st.Session.UserKey)
			fmt.Fprintf(out, "Fingerprint:  %s\n", st.Fingerprint)
			if st.Session.Name != "" {
				fmt.Fprintf(out, "Name:         %s\n", st.Session.Name)
			}
			for _, r := range st.Session.Relays {
				fmt.Fprintf(out, "Relay:        %s\n", r)
			}
			if !st.Session.LastContact.IsZero() {
				fmt.Fprintf(out, "Last contact: %s\n", st.Session.LastContact.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func whoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the user's public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.Signer()
			if err != nil {
				return err
			}
			user, err := s.GetIdentity(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user)
			return nil
		},
	}
}

func relaysCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "relays",
		Short: "List the session's relays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.Signer()
			if err != nil {
				return err
			}
			for _, r := range s.Relays() {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
}

func pingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the remote signer answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := c.app.Sessions.Signer().Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pong in %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
