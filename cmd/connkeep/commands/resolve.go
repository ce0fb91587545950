package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/connkeep/connkeep/internal/entity"
	"github.com/connkeep/connkeep/internal/resolve"
	"github.com/connkeep/connkeep/internal/vars"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

// NewResolveCommand runs the full resolution pipeline for an ad-hoc
// connection: policy interpretation, key building, fallback chain, cache.
// Useful for checking what a client application would receive.
func NewResolveCommand(app *App) *cobra.Command {
	var (
		host     string
		protocol string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve credentials for a connection the way a client would",
		Long: `Resolve credentials for a named connection through the full pipeline:
lookup key construction, the backend fallback chain, and the resolution
cache. The resolution runs on the async driver and is cancelled if it
exceeds the timeout.

Examples:
  connkeep resolve db-prod --protocol ssh
  connkeep resolve db-prod --protocol rdp --timeout 10s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}

			dir := entity.NewMemoryDirectory()
			conn := &entity.Connection{
				Name:     args[0],
				Host:     host,
				Protocol: protocol,
				Source:   entity.Vault(),
			}
			resolver := resolve.New(dir, vars.NewMemoryStore(), manager, app.Logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			outcome := resolve.NewAsync(resolver).Submit(ctx, conn).Wait()
			switch outcome.Status {
			case resolve.StatusCancelled:
				return ckerrors.UserError{
					Message:    fmt.Sprintf("Resolution timed out after %s", timeout),
					Suggestion: "Check backend availability with 'connkeep backends' or raise --timeout",
				}
			case resolve.StatusFailure:
				return outcome.Err
			}

			result := outcome.Result
			if result.NeedsPrompt {
				fmt.Println("policy: interactive prompt (nothing stored)")
				return nil
			}
			if !result.Found() {
				fmt.Println("no credential stored; client would prompt")
				return nil
			}
			defer result.Credential.Zeroize()

			fmt.Printf("username: %s\n", result.Credential.Username)
			if result.Credential.Domain != "" {
				fmt.Printf("domain:   %s\n", result.Credential.Domain)
			}
			fmt.Println("password: [REDACTED]")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Connection host, used when the name is empty")
	cmd.Flags().StringVar(&protocol, "protocol", "ssh", "Connection protocol, part of the lookup key")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall resolution timeout")
	return cmd
}
