package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jordanlanch/campaigndesk/pkg/secrets"
	"github.com/spf13/cobra"
)

func secretsCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Encrypt or decrypt configuration values",
		Long: `Values written as enc:<payload> in the environment or in channel settings
are decrypted with ENCRYPTION_KEY at load time. Use these commands to
produce and inspect such values.`,
	}
	cmd.PersistentFlags().StringVar(&key, "key", "", "passphrase (default $ENCRYPTION_KEY)")

	cipherFor := func() (*secrets.Cipher, error) {
		k := key
		if k == "" {
			k = os.Getenv("ENCRYPTION_KEY")
		}
		if k == "" {
			return nil, errors.New("no key: pass --key or set ENCRYPTION_KEY")
		}
		return secrets.NewCipher(k)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cipherFor()
			if err != nil {
				return err
			}
			out, err := c.Encrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decrypt <value>",
		Short: "Decrypt an enc: value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !secrets.IsEncrypted(args[0]) {
				fmt.Fprintln(os.Stderr, warn("value is not encrypted"))
				fmt.Println(args[0])
				return nil
			}
			c, err := cipherFor()
			if err != nil {
				return err
			}
			out, err := c.Decrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	})

	return cmd
}
