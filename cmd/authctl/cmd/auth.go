package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall" // For reading password securely

	"github.com/spf13/cobra"
	"golang.org/x/term" // For reading password

	autherrors "github.com/NovuntFinance/authgate/errors"
	"github.com/NovuntFinance/authgate/twofactor"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the Novunt platform and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionStore.IsAuthenticated() {
			fmt.Print("Already logged in. Re-login? (yes/no): ")
			reader := bufio.NewReader(os.Stdin)
			confirm, _ := reader.ReadString('\n')
			if strings.TrimSpace(strings.ToLower(confirm)) != "yes" {
				fmt.Println("Login cancelled.")
				return nil
			}
		}

		fmt.Print("Enter email: ")
		reader := bufio.NewReader(os.Stdin)
		email, _ := reader.ReadString('\n')
		email = strings.TrimSpace(email)

		fmt.Print("Enter password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after password input
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password := string(bytePassword)

		user, err := gateClient.Login(cmd.Context(), email, password, "")
		if autherrors.IsTwoFARequired(err) {
			fmt.Print("Enter 6-digit 2FA code: ")
			code, _ := reader.ReadString('\n')
			user, err = gateClient.Login(cmd.Context(), email, password, strings.TrimSpace(code))
		}
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Printf("Login successful. Logged in as: %s (ID: %s)\n", user.Email, user.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !sessionStore.IsAuthenticated() && sessionStore.RefreshToken() == "" {
			fmt.Println("Not logged in.")
			return nil
		}
		gateClient.Logout(cmd.Context())
		fmt.Println("Logged out.")
		return nil
	},
}

// terminalPrompter satisfies the two-factor gate by asking on stdin. It
// is what turns a gated API call into the familiar "enter your code"
// moment.
type terminalPrompter struct{}

func (terminalPrompter) Prompt(ctx context.Context, req twofactor.PromptRequest) (twofactor.PromptResponse, error) {
	fmt.Printf("Two-factor code required for %s %s\n", req.Method, req.URL)
	if req.Retry {
		fmt.Println("The previous code was rejected, try again.")
	}
	fmt.Print("Enter 6-digit code (empty to cancel): ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return twofactor.PromptResponse{ID: req.ID, Cancelled: true}, nil
	}

	code := strings.TrimSpace(line)
	if code == "" {
		return twofactor.PromptResponse{ID: req.ID, Cancelled: true}, nil
	}
	return twofactor.PromptResponse{ID: req.ID, Code: code}, nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
