package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cori-do/cori/internal/token"
)

func tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate, mint, attenuate, and inspect capability tokens",
	}
	cmd.AddCommand(
		tokenKeygenCommand(),
		tokenMintCommand(),
		tokenAttenuateCommand(),
		tokenInspectCommand(),
	)
	return cmd
}

func tokenKeygenCommand() *cobra.Command {
	var pubPath, privPath string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new Ed25519 root keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := token.GenerateRootKey()
			if err != nil {
				return fail("generating root key: %w", err)
			}
			if err := token.WritePublicKey(pubPath, pub); err != nil {
				return fail("writing public key: %w", err)
			}
			if err := token.WritePrivateKey(privPath, priv); err != nil {
				return fail("writing private key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", pubPath, privPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&pubPath, "public-key", "cori_root.pub", "path to write the root public key")
	cmd.Flags().StringVar(&privPath, "private-key", "cori_root.key", "path to write the root private key")
	return cmd
}

func tokenMintCommand() *cobra.Command {
	var privPath, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a root-level capability token scoped to a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := token.ReadPrivateKey(privPath)
			if err != nil {
				return fail("loading root private key: %w", err)
			}
			tok, err := token.Mint(priv, role, ttl)
			if err != nil {
				return fail("minting token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(tok))
			return nil
		},
	}
	cmd.Flags().StringVar(&privPath, "private-key", "cori_root.key", "path to the root private key")
	cmd.Flags().StringVar(&role, "role", "", "role this token grants")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 = no expiry)")
	cmd.MarkFlagRequired("role")
	return cmd
}

func tokenAttenuateCommand() *cobra.Command {
	var parent, tenant string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "attenuate",
		Short: "Derive a tenant-scoped token from a parent token",
		RunE: func(cmd *cobra.Command, args []string) error {
			child, err := token.Attenuate([]byte(parent), tenant, ttl)
			if err != nil {
				return fail("attenuating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(child))
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent token to delegate from")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant this token is scoped to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 = no expiry, inherits parent's if shorter)")
	cmd.MarkFlagRequired("parent")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func tokenInspectCommand() *cobra.Command {
	var pubPath, tok string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Verify a token and print its claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := token.ReadPublicKey(pubPath)
			if err != nil {
				return fail("loading root public key: %w", err)
			}
			claims, err := token.Verify(pub, []byte(tok))
			if err != nil {
				return fail("verifying token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "role: %s\n", claims.Role)
			if claims.HasTenant {
				fmt.Fprintf(cmd.OutOrStdout(), "tenant: %s\n", claims.Tenant)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "tenant: (none)")
			}
			if claims.ExpiresAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "expires_at: %s\n", claims.ExpiresAt.Format(time.RFC3339))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "expires_at: (never)")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pubPath, "public-key", "cori_root.pub", "path to the root public key")
	cmd.Flags().StringVar(&tok, "token", "", "token to inspect")
	cmd.MarkFlagRequired("token")
	return cmd
}
