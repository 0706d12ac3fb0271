package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-shutters/internal/auth"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/config"
)

func newTokenCommand(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token",
		Long: `Sign a JWT for a wall panel, dashboard or integration with the
secret from security.jwt. The token lifetime defaults to
security.jwt.access_token_ttl.

Roles:
  viewer    read cover state and history, receive live updates
  operator  viewer plus overrides, shading and recalibration
  admin     operator plus entry option changes and the audit trail`,
		Example: `  graylogic-covers token --subject wall-panel --role viewer
  graylogic-covers token --subject home-assistant --role operator --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return mintToken(cmd.OutOrStdout(), resolveConfigPath(*configPath), subject, auth.Role(role), ttl)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. the panel name (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "role granted by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("subject") //nolint:errcheck // Flag is defined above

	return cmd
}

// mintToken signs a token for subject and writes it to out.
func mintToken(out io.Writer, configPath, subject string, role auth.Role, ttl time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return auth.ErrNoSecret
	}
	if !auth.IsValidRole(role) {
		return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
	}
	if subject == "" {
		return errors.New("subject is required")
	}
	if ttl <= 0 {
		ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(subject, role, cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
