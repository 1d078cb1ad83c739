package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/frederikbeimgraben/mcssh/internal/transport/sshserver"
)

func authorizeCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "authorize <pubkey-file>",
		Short: "Add a public key to the authorized keys directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := authorizeKey(cfg.AuthorizedKeysDir, args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authorized %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "file name in the key directory (default: source file name)")
	return cmd
}

// authorizeKey validates the keys in src and copies them into dir as name.
func authorizeKey(dir, src, name string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	keys := sshserver.ParseAuthorizedKeys(src, data)
	if len(keys) == 0 {
		return "", fmt.Errorf("no valid public key in %s", src)
	}

	if name == "" {
		name = filepath.Base(src)
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid key name %q", name)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("%s already exists", dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	var b strings.Builder
	for _, k := range keys {
		b.Write(ssh.MarshalAuthorizedKey(k))
	}
	if err := os.WriteFile(dst, []byte(b.String()), 0o600); err != nil {
		return "", err
	}
	return dst, nil
}
