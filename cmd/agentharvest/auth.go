package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentharvest/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
	Long: `Manage stored proxy service and directory credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only)`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store credentials securely",
	Long: `Store a credential profile in the system keychain or encrypted file.

You will be prompted for:
  - Profile name (if not provided)
  - Proxy service API token
  - Directory session cookie (optional)`,
	Example: `  # Interactive login
  agentharvest auth login

  # Login with a profile name
  agentharvest auth login staging`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout <profile>",
	Short: "Remove a stored credential profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential profiles",
	Long:  `List stored credential profiles with secrets masked.`,
	RunE:  runList,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials a harvest run would use",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		fmt.Print("Profile name (default): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read profile name: %w", err)
		}
		name = strings.TrimSpace(input)
		if name == "" {
			name = "default"
		}
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Profile %q already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Proxy service API token: ")
	proxyToken, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read API token: %w", err)
	}
	if proxyToken == "" {
		return fmt.Errorf("proxy API token is required")
	}

	fmt.Print("Directory session cookie (optional): ")
	sessionCookie, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read session cookie: %w", err)
	}

	profile := &auth.Profile{
		Name:          name,
		ProxyToken:    proxyToken,
		SessionCookie: sessionCookie,
	}

	if err := manager.Store(profile); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("Credentials stored for profile %q\n", name)
	fmt.Println("\nRun a harvest with:")
	fmt.Printf("  agentharvest harvest --profile %s\n", name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := args[0]
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove profile: %w", err)
	}

	fmt.Printf("Profile removed: %s\n", name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(profiles) == 0 {
		fmt.Println("No stored profiles. Use 'agentharvest auth login' to add one.")
		return nil
	}

	for i, profile := range profiles {
		sanitized := auth.SanitizeProfile(profile)
		fmt.Printf("%d. Profile: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Proxy token:    %s\n", sanitized.ProxyToken)
		if sanitized.SessionCookie != "" {
			fmt.Printf("   Session cookie: %s\n", sanitized.SessionCookie)
		}
		fmt.Printf("   Last modified:  %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if os.Getenv("AGENTHARVEST_PROXY_API_TOKEN") != "" {
		fmt.Println("Environment credentials are set and take precedence.")
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profile, err := manager.RetrieveDefault()
	if err != nil {
		fmt.Println("No credentials found. Use 'agentharvest auth login' or set AGENTHARVEST_PROXY_API_TOKEN.")
		return nil
	}

	sanitized := auth.SanitizeProfile(profile)
	fmt.Printf("Active profile:  %s\n", sanitized.Name)
	fmt.Printf("Proxy token:     %s\n", sanitized.ProxyToken)
	if sanitized.SessionCookie != "" {
		fmt.Printf("Session cookie:  %s\n", sanitized.SessionCookie)
	} else {
		fmt.Println("Session cookie:  (not set, directory requests go out unauthenticated)")
	}
	return nil
}

// readSecret reads a value from stdin without echoing
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
