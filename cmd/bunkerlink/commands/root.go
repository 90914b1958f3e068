package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bunkerlink/internal/app"
	"bunkerlink/internal/domain"
	"bunkerlink/internal/logging"
)

type cli struct {
	home       string
	passphrase string
	configPath string
	store      string
	logLevel   string

	// bus replaces the relay pool; tests only.
	bus domain.Bus

	app *app.App
}

// Execute runs the CLI with os.Args.
func Execute(ctx context.Context) error {
	root, c := newRoot()
	defer c.close()
	return root.ExecuteContext(ctx)
}

func newRoot() (*cobra.Command, *cli) {
	c := &cli{}
	root := &cobra.Command{
		Use:           "bunkerlink",
		Short:         "Sign and encrypt through a remote NIP-46 signer",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.home, "home", "", "state dir (default ~/.bunkerlink)")
	root.PersistentFlags().StringVarP(&c.passphrase, "passphrase", "p", "", "passphrase for the sealed store")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default <home>/config.toml)")
	root.PersistentFlags().StringVar(&c.store, "store", "", "session store: file, sealed, sqlite or badger")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		connectCmd(c),
		statusCmd(c),
		whoamiCmd(c),
		signCmd(c),
		encryptCmd(c),
		decryptCmd(c),
		pingCmd(c),
		relaysCmd(c),
		disconnectCmd(c),
	)
	return root, c
}

func (c *cli) open(cmd *cobra.Command) error {
	if c.home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.home = filepath.Join(dir, ".bunkerlink")
	}
	if err := os.MkdirAll(c.home, 0o700); err != nil {
		return err
	}

	cfg := app.DefaultConfig(c.home)
	path := c.configPath
	if path == "" {
		path = filepath.Join(c.home, app.ConfigFile)
	}
	if err := app.LoadConfigFile(path, &cfg); err != nil {
		return err
	}
	if c.store != "" {
		kind, err := app.ParseStoreKind(c.store)
		if err != nil {
			return err
		}
		cfg.Store = kind
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	cfg.Passphrase = c.passphrase
	cfg.Bus = c.bus
	if cfg.Store == app.StoreSealed && cfg.Passphrase == "" {
		return fmt.Errorf("passphrase required for the sealed store (-p)")
	}

	stderr := cmd.ErrOrStderr()
	cfg.OnAuth = func(_, url string) {
		fmt.Fprintf(stderr, "Approve the request at: %s\n", url)
	}
	log := logging.New("bunkerlink", logging.Config{
		Level:  cfg.LogLevel,
		Format: logging.Format(cfg.LogFormat),
		Out:    stderr,
	})

	a, err := app.Open(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close() {
	if c.app == nil {
		return
	}
	if err := c.app.Close(); err != nil {
		c.app.Log.Warn().Err(err).Msg("shutdown")
	}
	c.app = nil
}
