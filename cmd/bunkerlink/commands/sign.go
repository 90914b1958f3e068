package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bunkerlink/internal/domain"
)

// sign [content]: sign an event as the user and print it as JSON.
func signCmd(c *cli) *cobra.Command {
	var (
		kind int
		tags []string
	)
	cmd := &cobra.Command{
		Use:   "sign [content]",
		Short: "Ask the remote signer to sign an event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.Signer()
			if err != nil {
				return err
			}
			ev := domain.UnsignedEvent{Kind: kind, Tags: []domain.Tag{}}
			if len(args) == 1 {
				ev.Content = args[0]
			}
			for _, raw := range tags {
				tag := domain.Tag(strings.Split(raw, ","))
				if len(tag) < 2 || tag[0] == "" {
					return fmt.Errorf("bad tag %q (want name,value[,...])", raw)
				}
				ev.Tags = append(ev.Tags, tag)
			}

			signed, err := s.Sign(cmd.Context(), ev)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			return enc.Encode(signed)
		},
	}
	cmd.Flags().IntVarP(&kind, "kind", "k", 1, "event kind")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "tag as name,value[,...] (repeatable)")
	return cmd
}

// encrypt <peer> <plaintext>: NIP-44 encrypt for peer as the user.
func encryptCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <peer-pubkey> <plaintext>",
		Short: "Encrypt text for a peer as the user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.Signer()
			if err != nil {
				return err
			}
			peer, err := domain.ParsePublicKey(args[0])
			if err != nil {
				return err
			}
			ct, err := s.EncryptFor(cmd.Context(), peer, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ct)
			return nil
		},
	}
}

// decrypt <peer> <ciphertext>: NIP-44 decrypt a payload from peer.
func decryptCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <peer-pubkey> <ciphertext>",
		Short: "Decrypt text from a peer as the user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.Signer()
			if err != nil {
				return err
			}
			peer, err := domain.ParsePublicKey(args[0])
			if err != nil {
				return err
			}
			pt, err := s.DecryptFrom(cmd.Context(), peer, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pt)
			return nil
		},
	}
}
