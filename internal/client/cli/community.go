package cli

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/iudanet/confsync/internal/models"
)

func (c *Cli) communityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "community",
		Short: "Manage joined communities",
	}
	cmd.AddCommand(
		c.communityJoinCommand(),
		c.communityLeaveCommand(),
		c.communityListCommand(),
	)
	return cmd
}

func (c *Cli) communityJoinCommand() *cobra.Command {
	var priority int64

	cmd := &cobra.Command{
		Use:   "join <url>",
		Short: "Join a community by its full URL",
		Long: "Join a community. The URL must carry the server public key:\n" +
			"  https://example.com/SomeRoom?public_key=<64 hex>\n" +
			"  https://example.com/r/SomeRoom?public_key=<base64>",
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().Int64Var(&priority, "priority", models.PriorityUnpinned, "Pin priority (0 - unpinned)")

	cmd.RunE = c.run(func(ctx context.Context, args []string) error {
		if models.IsHidden(priority) {
			return errors.New("priority cannot be negative, use 'community leave'")
		}

		server, room, pubKey, err := models.ParseCommunityURL(args[0])
		if err != nil {
			return err
		}

		s, err := c.unlocked(ctx)
		if err != nil {
			return err
		}

		groups := s.registry.UserGroups()
		community, err := groups.GetOrConstructCommunity(server, room, pubKey)
		if err != nil {
			return err
		}
		community.PubKey = pubKey
		community.Priority = priority
		if err := groups.SetCommunity(community); err != nil {
			return errors.Wrap(err, "failed to join community")
		}
		if err := s.commit(ctx, groups.Object()); err != nil {
			return err
		}

		c.printf("✓ Joined %s\n", community.FullURL())
		return nil
	})
	return cmd
}

func (c *Cli) communityLeaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <base-url> <room>",
		Short: "Leave a community on all devices",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			groups := s.registry.UserGroups()
			found, err := groups.EraseCommunity(args[0], args[1])
			if err != nil {
				return errors.Wrap(err, "failed to leave community")
			}
			if !found {
				return errors.Newf("community %s/%s not found", args[0], args[1])
			}
			if err := s.commit(ctx, groups.Object()); err != nil {
				return err
			}

			c.printf("✓ Left %s/%s\n", args[0], args[1])
			return nil
		}),
	}
}

func (c *Cli) communityListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List joined communities",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			rows, err := s.projector.Communities(ctx)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				c.println("No communities found.")
				return nil
			}
			for _, r := range rows {
				c.printf("%s/%s?public_key=%s  priority=%d\n", r.BaseURL, r.Room, r.PubKey, r.Priority)
			}
			return nil
		}),
	}
}
