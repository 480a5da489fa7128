package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/tokengate/internal/auth/jwt"
	"github.com/vyrodovalexey/tokengate/internal/observability"
	"github.com/vyrodovalexey/tokengate/internal/secrets"
)

type tokenOptions struct {
	subject    string
	issuer     string
	ttl        time.Duration
	privateKey string
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		Long: `Issue a token the gateway accepts, signed with the configured algorithm.
HMAC algorithms use the configured secret; asymmetric algorithms need
--private-key.`,
		Example: `  tokengate token --sub alice --ttl 30m
  curl -H "Authorization: Bearer $(tokengate token --sub alice)" localhost:8000/gateway`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			alg, err := jwt.ParseAlgorithm(cfg.Auth.Algorithm)
			if err != nil {
				return err
			}

			var key interface{}
			if jwt.IsHMAC(alg) {
				secret, err := secrets.ResolveSigningSecret(commandContext(cmd), cfg.Auth.Secret, observability.NopLogger())
				if err != nil {
					return fmt.Errorf("failed to resolve signing secret: %w", err)
				}
				key = secret
			} else {
				if opts.privateKey == "" {
					return fmt.Errorf("--private-key is required for algorithm %s", alg)
				}
				key, err = jwt.LoadPEMKey(opts.privateKey)
				if err != nil {
					return err
				}
			}

			token, err := jwt.Sign(jwt.SignOptions{
				Subject:   opts.subject,
				Issuer:    opts.issuer,
				TTL:       opts.ttl,
				Algorithm: alg.String(),
				Key:       key,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.subject, "sub", "", "subject (identity) claim")
	flags.StringVar(&opts.issuer, "iss", "", "optional issuer claim")
	flags.DurationVar(&opts.ttl, "ttl", 30*time.Minute, "token lifetime")
	flags.StringVar(&opts.privateKey, "private-key", "", "PEM private key for asymmetric algorithms")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}
