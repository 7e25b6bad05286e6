package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/relay/internal/control"
	"github.com/vietddude/relay/internal/infra/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored bearer credential",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set TOKEN",
	Short: "Store a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokenStore(cmd.Context(), func(ctx context.Context, s *token.Store) error {
			return s.Set(ctx, args[0])
		})
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokenStore(cmd.Context(), func(ctx context.Context, s *token.Store) error {
			return s.Clear(ctx)
		})
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the claims of the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTokenStore(cmd.Context(), func(ctx context.Context, s *token.Store) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s.Info())
		})
	},
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd, tokenClearCmd, tokenShowCmd)
	rootCmd.AddCommand(tokenCmd)
}

func withTokenStore(ctx context.Context, fn func(context.Context, *token.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	storage, closer, err := control.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	store, err := token.NewStore(ctx, storage, cfg.Token.Key, nil, nil)
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

var (
	loginUser     string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in against the backend and store the issued token",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of the backend and clear the stored token",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (default $RELAY_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	password := loginPassword
	if password == "" {
		password = os.Getenv("RELAY_PASSWORD")
	}
	if password == "" {
		return errors.New("password required: pass --password or set RELAY_PASSWORD")
	}

	return withRelay(cmd.Context(), func(ctx context.Context, app *control.Relay) error {
		path := app.Config().Backend.LoginPath
		if path == "" {
			return errors.New("backend.login_path is not configured")
		}
		return app.Client().Login(ctx, path, map[string]string{
			"username": loginUser,
			"password": password,
		})
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withRelay(cmd.Context(), func(ctx context.Context, app *control.Relay) error {
		return app.Client().Logout(ctx, app.Config().Backend.LogoutPath)
	})
}

func withRelay(ctx context.Context, fn func(context.Context, *control.Relay) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app, err := control.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize relay: %w", err)
	}
	defer app.Close()
	app.Probe(ctx)
	return fn(ctx, app)
}
