package cli

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	clientsync "github.com/iudanet/confsync/internal/client/sync"
)

func (c *Cli) resetCommand() *cobra.Command {
	var network, yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove the account from this device",
		Long: "Remove the account identity, stored config and local projection from\n" +
			"this device. With --network also deletes the account config messages\n" +
			"from the swarm, so other devices can no longer fetch them.",
		Args: cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			if !yes {
				return errors.New("refusing to remove the account without --yes")
			}
			return c.runReset(ctx, network)
		}),
	}
	cmd.Flags().BoolVar(&network, "network", false, "Also delete config messages from the swarm")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm removal")
	return cmd
}

func (c *Cli) runReset(ctx context.Context, network bool) error {
	s, err := c.unlocked(ctx)
	if err != nil {
		return err
	}

	if network {
		// Без pull хеши сообщений других устройств неизвестны
		if err := c.pull(ctx, s); err != nil {
			return err
		}
		for _, obj := range s.registry.Objects() {
			if err := s.reconciler.Forget(ctx, obj.Namespace(), obj.Owner()); err != nil {
				return errors.Wrapf(err, "failed to forget %s", obj.Namespace())
			}
		}

		result := s.reconciler.Run(ctx)
		c.printResult(result)
		if result.Status != clientsync.StatusSent {
			return errors.Wrapf(result.Err, "failed to delete config from swarm (%s)", result.Status)
		}
	}

	if err := s.projector.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to clear projection")
	}
	// Реестр очищается до удаления, иначе закрытие сессии сохранит dump'ы заново
	s.registry.Close()
	if err := c.identity.Delete(ctx); err != nil {
		return errors.Wrap(err, "failed to remove account")
	}

	c.println("✓ Account removed from this device")
	return nil
}
