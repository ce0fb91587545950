package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/connkeep/connkeep/internal/logging"
	"github.com/connkeep/connkeep/pkg/backend"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

// NewSecretCommand groups the raw vault operations: get, set, rm, rename,
// copy, purge. These act on lookup keys directly; credential resolution by
// connection policy lives under `connkeep resolve`.
func NewSecretCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage stored credentials by lookup key",
	}

	cmd.AddCommand(
		newSecretGetCommand(app),
		newSecretSetCommand(app),
		newSecretRmCommand(app),
		newSecretRenameCommand(app),
		newSecretCopyCommand(app),
		newSecretPurgeCommand(app),
	)
	return cmd
}

func newSecretGetCommand(app *App) *cobra.Command {
	var (
		jsonOutput   bool
		showPassword bool
		backendID    string
	)

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a stored credential",
		Long: `Retrieve the credential stored under a lookup key.

The password is redacted unless --show-password is given.

Examples:
  # Check what is stored for a connection
  connkeep secret get "connkeep/db-prod (ssh)"

  # Print the raw password for scripting
  connkeep secret get "connkeep/db-prod (ssh)" --show-password

  # Read from one specific backend, skipping the fallback chain
  connkeep secret get "connkeep/db-prod (ssh)" --backend local-file`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}

			cred, err := manager.Dispatch(cmd.Context(), backend.VaultOp{
				Kind:            backend.OpRetrieve,
				Key:             args[0],
				BackendOverride: backendID,
			})
			if err != nil {
				return err
			}
			if cred == nil {
				return ckerrors.UserError{
					Message:    fmt.Sprintf("No credential stored under '%s'", args[0]),
					Suggestion: "Use 'connkeep secret set' to store one, or 'connkeep backends' to check which store is active",
				}
			}
			defer cred.Zeroize()

			password := "[REDACTED]"
			if showPassword {
				password, err = cred.Password.Reveal()
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				out := map[string]string{
					"key":      args[0],
					"username": cred.Username,
					"domain":   cred.Domain,
					"password": password,
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(out)
			}

			if showPassword {
				// Raw value on stdout for scripting, nothing else.
				fmt.Print(password)
				return nil
			}
			fmt.Printf("username: %s\n", cred.Username)
			if cred.Domain != "" {
				fmt.Printf("domain:   %s\n", cred.Domain)
			}
			fmt.Printf("password: %s\n", password)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&showPassword, "show-password", false, "Print the password instead of redacting it")
	cmd.Flags().StringVar(&backendID, "backend", "", "Pin the operation to one backend id")
	return cmd
}

func newSecretSetCommand(app *App) *cobra.Command {
	var (
		username  string
		domain    string
		backendID string
	)

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a credential",
		Long: `Store a credential under a lookup key.

The password is read from stdin so it never appears in shell history or a
process listing.

Examples:
  # Interactive
  connkeep secret set "connkeep/db-prod (ssh)" --username admin

  # Piped
  printf '%s' "$PASSWORD" | connkeep secret set "connkeep/db-prod (ssh)" --username admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}

			password, err := readSecretLine("Password: ")
			if err != nil {
				return err
			}
			cred := backend.New(username, password, domain, "")
			defer cred.Zeroize()
			app.Logger.Debug("storing under '%s' as user '%s' with password %v",
				args[0], username, logging.Secret(password))

			_, err = manager.Dispatch(cmd.Context(), backend.VaultOp{
				Kind:            backend.OpStore,
				Key:             args[0],
				Credential:      cred,
				BackendOverride: backendID,
			})
			if err != nil {
				// Backend errors can echo subprocess stderr, which may
				// quote the value we just piped in.
				app.Logger.Debug("store failed: %s", logging.Redact(err.Error(), []string{password}))
				return err
			}
			app.Logger.Info("stored credential under '%s'", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username to store")
	cmd.Flags().StringVar(&domain, "domain", "", "Domain to store")
	cmd.Flags().StringVar(&backendID, "backend", "", "Pin the operation to one backend id")
	return cmd
}

func newSecretRmCommand(app *App) *cobra.Command {
	var backendID string

	cmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}
			_, err = manager.Dispatch(cmd.Context(), backend.VaultOp{
				Kind:            backend.OpDelete,
				Key:             args[0],
				BackendOverride: backendID,
			})
			if err != nil {
				return err
			}
			app.Logger.Info("deleted credential under '%s'", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&backendID, "backend", "", "Pin the operation to one backend id")
	return cmd
}

func newSecretRenameCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <old-key> <new-key>",
		Short: "Move a credential to a new lookup key",
		Long: `Move a credential to a new lookup key.

The move is performed as a single operation on backends that support it;
elsewhere the new key is written before the old one is cleared, so the
secret is reachable at every point.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}
			_, err = manager.Dispatch(cmd.Context(), backend.VaultOp{
				Kind:   backend.OpRename,
				Key:    args[0],
				NewKey: args[1],
			})
			if err != nil {
				return err
			}
			app.Logger.Info("renamed '%s' to '%s'", args[0], args[1])
			return nil
		},
	}
	return cmd
}

func newSecretCopyCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy <src-key> <dst-key> [dst-key...]",
		Short: "Copy a credential to one or more new keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}

			result, err := manager.CopyCredentials(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			app.Logger.Info("copied '%s' to %d of %d keys", args[0], result.SuccessCount, result.Total())
			if !result.IsSuccess() {
				return ckerrors.UserError{
					Message:    fmt.Sprintf("%d copies failed", result.FailureCount),
					Details:    strings.Join(result.FailedKeys, ", "),
					Suggestion: "Check backend availability with 'connkeep backends'",
				}
			}
			return nil
		},
	}
	return cmd
}

func newSecretPurgeCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <key> [key...]",
		Short: "Best-effort bulk delete of stored credentials",
		Long: `Delete the credentials under every given key. Failures are logged and
counted but never abort the run; entries that are already gone count as
deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}

			report := manager.PurgeSecrets(cmd.Context(), args)
			app.Logger.Info("purged %d credentials, %d failed", report.Deleted, len(report.Failed))
			return nil
		},
	}
	return cmd
}
