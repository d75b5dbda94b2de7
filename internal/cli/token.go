package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/propdesk/turnover/internal/daemon"
	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/security"
)

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleWorker), "Role: worker or manager")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

var (
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue ID",
	Short: "Issue a bearer token for a worker or manager",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenIssue,
}

type issuedToken struct {
	Token     string    `json:"token" yaml:"token"`
	Subject   string    `json:"subject" yaml:"subject"`
	Role      string    `json:"role" yaml:"role"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	actor := domain.Actor{ID: args[0], Role: domain.Role(tokenRole)}
	if actor.Role != domain.RoleWorker && actor.Role != domain.RoleManager {
		return fmt.Errorf("unknown role %q (want worker or manager)", tokenRole)
	}

	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tokens, err := daemon.LoadTokens(cfg)
	if err != nil {
		return err
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl, err = time.ParseDuration(cfg.Auth.TokenTTL)
		if err != nil || ttl <= 0 {
			ttl = security.DefaultTTL
		}
	}
	signed, err := tokens.Issue(actor, ttl)
	if err != nil {
		return err
	}

	out := issuedToken{
		Token:     signed,
		Subject:   actor.ID,
		Role:      string(actor.Role),
		ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
	}
	return render(cmd.OutOrStdout(), out, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, out.Token)
		return err
	})
}
