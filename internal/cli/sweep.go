package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/dossier/internal/config"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "List overflow payloads no report references",
		Long: `Lists device-local overflow payloads and cached remote payloads that no
stored report references, typically left behind by a save whose document
write failed. Pass --apply to delete them. Run it while no server on this
device is writing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			repo, err := newRepository(cfg, b)
			if err != nil {
				return err
			}

			orphans, err := repo.Sweep(ctx, apply)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, k := range orphans {
				if _, err := fmt.Fprintln(out, k); err != nil {
					return err
				}
			}
			log.Info().Int("orphans", len(orphans)).Bool("deleted", apply).Msg("sweep finished")
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete the listed payloads")

	return cmd
}
