package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"counsel/internal/pkg/jwt"
)

var (
	tokenUserID string
	tokenFirmID string
	tokenRole   string
	tokenExpiry time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development access token",
	Long: `Issue an access token signed with auth.jwt_secret. Production tokens
come from the firm's identity service; this command is for local use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not configured")
		}
		expiry := tokenExpiry
		if expiry <= 0 {
			expiry = cfg.Auth.AccessTokenExpiry
		}
		token, err := jwt.NewJWT(cfg.Auth.JWTSecret, expiry).GenerateToken(tokenUserID, tokenFirmID, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id (required)")
	tokenCmd.Flags().StringVar(&tokenFirmID, "firm", "", "firm id (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "member", "role claim")
	tokenCmd.Flags().DurationVar(&tokenExpiry, "expiry", 0, "token lifetime (default: auth.access_token_expiry)")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("firm")
}
