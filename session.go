package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/manru/manru-be/internal/apiclient"
	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/database"
	"github.com/manru/manru-be/internal/models"
	"github.com/manru/manru-be/internal/session"
)

// localSession bundles what the client-side commands work with.
type localSession struct {
	api     *apiclient.Client
	storage *session.SQLiteStorage
	client  *session.Client
	close   func()
}

func openSession(ctx context.Context, cfg *config.Config) (*localSession, error) {
	db, err := database.New(ctx, config.DriverSQLite, cfg.SessionPath)
	if err != nil {
		return nil, oops.Code("SESSION_OPEN_FAILED").With("path", cfg.SessionPath).Wrap(err)
	}
	storage, err := session.NewSQLiteStorage(ctx, db)
	if err != nil {
		db.Close()
		return nil, oops.Code("SESSION_OPEN_FAILED").With("path", cfg.SessionPath).Wrap(err)
	}

	api := apiclient.New(cfg.APIBaseURL, nil)
	client := session.NewClient(api, storage)
	return &localSession{
		api:     api,
		storage: storage,
		client:  client,
		close: func() {
			client.Close()
			db.Close()
		},
	}, nil
}

// NewRegisterCmd creates the register subcommand.
func NewRegisterCmd(cfg func() *config.Config) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and start a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				var err error
				if password, err = promptPassword(cmd); err != nil {
					return err
				}
			}

			s, err := openSession(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer s.close()

			user, err := s.client.Register(cmd.Context(), name, email, password)
			if err != nil {
				return describe(err)
			}
			printUser(cmd, "Registered", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// NewLoginCmd creates the login subcommand.
func NewLoginCmd(cfg func() *config.Config) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				var err error
				if password, err = promptPassword(cmd); err != nil {
					return err
				}
			}

			s, err := openSession(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer s.close()

			user, err := s.client.Login(cmd.Context(), email, password)
			if err != nil {
				return describe(err)
			}
			printUser(cmd, "Logged in as", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// NewWhoamiCmd creates the whoami subcommand. It restores the stored session
// and waits for the background reconciliation before printing.
func NewWhoamiCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cfg())
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := s.client.Restore(ctx); err != nil {
				return err
			}
			s.client.Wait()

			user, err := s.client.CurrentUser(ctx)
			if err != nil {
				return err
			}
			if s.client.State() != session.LoggedIn || user == nil {
				cmd.Println("Not logged in")
				return nil
			}
			printUser(cmd, "Logged in as", *user)
			return nil
		},
	}
}

// NewLogoutCmd creates the logout subcommand.
func NewLogoutCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.client.Logout(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out")
			return nil
		},
	}
}

// NewDeleteAccountCmd creates the delete-account subcommand.
func NewDeleteAccountCmd(cfg func() *config.Config) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the logged-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete the account without --yes")
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cfg())
			if err != nil {
				return err
			}
			defer s.close()

			token, err := s.client.Token(ctx)
			if err != nil {
				return err
			}
			user, err := s.client.CurrentUser(ctx)
			if err != nil {
				return err
			}
			if token == "" || user == nil {
				return errors.New("not logged in")
			}

			if err := s.api.DeleteAccount(ctx, token, user.ID); err != nil {
				return describe(err)
			}
			if err := s.client.Logout(ctx); err != nil {
				return err
			}
			cmd.Printf("Deleted account %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

// NewRecoverProfilesCmd creates the recover-profiles subcommand. It only runs
// with LEGACY_PROFILE_RECOVERY enabled.
func NewRecoverProfilesCmd(cfg func() *config.Config) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recover-profiles",
		Short: "Rebuild lost local profiles from authored content",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			ctx := cmd.Context()
			s, err := openSession(ctx, c)
			if err != nil {
				return err
			}
			defer s.close()

			recovery := session.NewRecovery(s.client, session.NewStorageDirectory(s.storage), c.LegacyProfileRecovery)
			if all {
				n, err := recovery.RecoverAll(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Recovered %d profile(s)\n", n)
				return nil
			}

			ok, err := recovery.Recover(ctx)
			if err != nil {
				return err
			}
			if ok {
				cmd.Println("Current profile is backed by a local record")
			} else {
				cmd.Println("Nothing to recover")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "repair every author without a record")
	return cmd
}

func promptPassword(cmd *cobra.Command) (string, error) {
	cmd.Print("Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printUser(cmd *cobra.Command, prefix string, user models.PublicUser) {
	cmd.Printf("%s %s <%s> (id %s)\n", prefix, user.Name, user.Email, user.ID)
}

// describe turns API errors into a one-line message for the terminal.
func describe(err error) error {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return err
}
