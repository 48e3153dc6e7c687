package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pair-quiz-service/internal/config"
	"pair-quiz-service/internal/domain"
	transport "pair-quiz-service/internal/transport/http"
)

// NewTokenCmd mints a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID, login string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret not configured")
			}
			if userID == "" {
				userID = uuid.NewString()
			}
			if login == "" {
				login = userID
			}
			auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, config.Duration(cfg.Auth.TokenTTL, 24*time.Hour))
			token, err := auth.SignToken(domain.Player{ID: userID, Login: login})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id placed in the sub claim (random uuid when empty)")
	cmd.Flags().StringVar(&login, "login", "", "display login")
	return cmd
}
