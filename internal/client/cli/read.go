package cli

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/iudanet/confsync/internal/client/projection"
	"github.com/iudanet/confsync/internal/models"
)

func (c *Cli) readCommand() *cobra.Command {
	var (
		unread bool
		at     int64
	)

	cmd := &cobra.Command{
		Use:   "read <session-id>",
		Short: "Mark a one-to-one conversation as read on all devices",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			lastRead := at
			if lastRead == 0 {
				lastRead = time.Now().UnixMilli()
			}

			volatile := s.registry.ConvoInfoVolatile()
			err = volatile.SetOneToOne(&models.OneToOneVolatile{
				SessionID: args[0],
				ReadState: models.ReadState{LastReadMs: lastRead, Unread: unread},
			})
			if err != nil {
				return errors.Wrap(err, "failed to update read state")
			}
			if err := s.commit(ctx, volatile.Object()); err != nil {
				return err
			}

			// Более позднее прочтение с другого устройства не откатывается
			state, err := s.projector.ReadState(ctx, projection.KindOneToOne, args[0])
			if err != nil {
				return err
			}
			c.printf("✓ Last read: %s, unread: %s\n",
				time.UnixMilli(state.LastReadMs).Format(time.RFC3339), yesNo(state.Unread))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "Mark the conversation as unread")
	cmd.Flags().Int64Var(&at, "at", 0, "Read timestamp in unix milliseconds (default now)")
	return cmd
}
