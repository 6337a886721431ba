package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NovuntFinance/authgate/token"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user from the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !sessionStore.IsAuthenticated() {
			fmt.Println("Not logged in.")
			return nil
		}

		user, err := gateClient.Profile(cmd.Context())
		if err != nil {
			// Fall back to the locally stored snapshot.
			user = sessionStore.User()
			fmt.Printf("(profile fetch failed: %v; showing stored snapshot)\n", err)
		}

		fmt.Printf("User:     %s\n", user.Email)
		fmt.Printf("ID:       %s\n", user.ID)
		fmt.Printf("Role:     %s\n", user.Role)
		fmt.Printf("Verified: %t\n", user.IsEmailVerified)
		fmt.Printf("2FA:      %t\n", user.Is2FAEnabled)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := sessionStore.AccessToken()
		if raw == "" {
			fmt.Println("No access token stored.")
			return nil
		}

		claims, err := token.Decode(raw)
		if err != nil {
			return fmt.Errorf("stored token is not decodable: %w", err)
		}

		fmt.Printf("Subject:       %s\n", claims.Subject)
		fmt.Printf("Role:          %s\n", claims.Role)
		fmt.Printf("2FA verified:  %t\n", claims.Is2FAVerified)
		fmt.Printf("Expires:       %s\n", claims.ExpiresAt.Format(time.RFC3339))
		fmt.Printf("Expired:       %t\n", token.IsExpired(raw, time.Now()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(tokenCmd)
}
