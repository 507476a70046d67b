package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/dossier/internal/auth"
	"github.com/gosuda/dossier/internal/config"
	"github.com/gosuda/dossier/internal/domain"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	ActorID string
	Name    string
	Role    string
	TTL     time.Duration // 0 uses DOSSIER_JWT_TTL
}

// NewTokenCommand creates the token command. Sign-in is handled by an
// external identity provider in production; this issues development tokens
// with the server's secret.
func NewTokenCommand() *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := issueToken(cfg.JWT.Secret, cfg.JWT.TTL, opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.ActorID, "actor-id", "", "actor id embedded as the token subject")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Role, "role", auth.RoleAnalyst, "role (admin|analyst|viewer)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default DOSSIER_JWT_TTL)")
	_ = cmd.MarkFlagRequired("actor-id")

	return cmd
}

func issueToken(secret string, defaultTTL time.Duration, opts *TokenOptions) (string, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return auth.IssueToken(secret, domain.Actor{ID: opts.ActorID, Name: opts.Name, Role: opts.Role}, ttl)
}
