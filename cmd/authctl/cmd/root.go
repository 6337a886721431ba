package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/NovuntFinance/authgate"
	"github.com/NovuntFinance/authgate/config"
	"github.com/NovuntFinance/authgate/storage"
	"github.com/NovuntFinance/authgate/store"
	"github.com/NovuntFinance/authgate/twofactor"
	"github.com/NovuntFinance/authgate/twofactor/totp"
)

const appName = "authctl"

var (
	cfg          *config.Config
	sessionStore *store.SessionStore
	gateClient   *authgate.Client
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "authctl is a CLI for Novunt platform sessions",
	Long:  `A command-line interface for logging in to the Novunt platform, inspecting the stored session, and exercising protected endpoints with automatic token refresh and two-factor gating.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		level, lerr := zerolog.ParseLevel(cfg.LogLevel)
		if lerr != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		if cfg.LogPretty {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}

		backend, err := sessionBackend()
		if err != nil {
			return err
		}
		sessionStore = store.NewSessionStore(backend)
		sessionStore.Hydrate(cmd.Context())

		gateClient = authgate.New(cfg, sessionStore, stepUpPrompter())
		return nil
	},
}

// stepUpPrompter answers two-factor prompts from a configured TOTP secret
// when one is set (headless/scripted use); otherwise it asks on the
// terminal.
func stepUpPrompter() twofactor.Prompter {
	if cfg.TOTPSecret != "" {
		return totp.NewAutoPrompter(cfg.TOTPSecret)
	}
	return terminalPrompter{}
}

// sessionBackend picks the file the session blob lives in, encrypted when
// a key is configured.
func sessionBackend() (storage.Storage, error) {
	path := cfg.SessionFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, "."+appName, "session.json")
	}

	var opts []storage.FileStoreOption
	if cfg.SessionKeyHex != "" {
		key, err := hex.DecodeString(cfg.SessionKeyHex)
		if err != nil {
			return nil, fmt.Errorf("SESSION_KEY_HEX is not valid hex: %w", err)
		}
		opts = append(opts, storage.WithEncryptionKey(key))
	}

	return storage.NewFileStore(path, opts...)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
