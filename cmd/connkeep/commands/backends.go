package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/connkeep/connkeep/pkg/backend"
)

// NewBackendsCommand lists the configured chain and probes each entry, in
// priority order. The doctor view for "why is nothing being stored".
func NewBackendsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List configured secret backends and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.Manager(cmd.Context())
			if err != nil {
				return err
			}

			selected := ""
			if b, err := manager.AvailableBackend(cmd.Context()); err == nil {
				selected = b.ID()
			}

			for rank, b := range manager.Chain() {
				status := "unavailable"
				if b.IsAvailable(cmd.Context()) {
					status = "available"
				}
				marker := " "
				if b.ID() == selected {
					marker = "*"
				}
				desc := backend.DescriptorOf(b)
				fmt.Printf("%s %d. %-20s %-12s %s\n", marker, rank+1, b.ID(), status, flagNames(desc.Flags))
			}
			if selected == "" {
				app.Logger.Warn("no backend is currently available; secrets cannot be stored or retrieved")
			}
			return nil
		},
	}
	return cmd
}

func flagNames(f backend.Flags) string {
	var names []string
	if f.Has(backend.FlagHierarchical) {
		names = append(names, "hierarchical")
	}
	if f.Has(backend.FlagPersistent) {
		names = append(names, "persistent")
	}
	if f.Has(backend.FlagRemote) {
		names = append(names, "remote")
	}
	if len(names) == 0 {
		return "-"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "," + n
	}
	return out
}
