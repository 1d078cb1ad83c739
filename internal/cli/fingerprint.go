package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/frederikbeimgraben/mcssh/internal/transport/sshserver"
)

func fingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the host key fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := sshserver.LoadOrCreateHostKey(cfg.HostKeyPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", ssh.FingerprintSHA256(signer.PublicKey()))
			return nil
		},
	}
	return cmd
}
