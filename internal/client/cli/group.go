package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/curve25519"

	"github.com/iudanet/confsync/internal/groupupdate"
	"github.com/iudanet/confsync/internal/validation"
)

func (c *Cli) groupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage legacy groups",
	}
	cmd.AddCommand(
		c.groupCreateCommand(),
		c.groupMembersCommand("add", "Add members to a group"),
		c.groupMembersCommand("remove", "Remove members from a group"),
		c.groupRenameCommand(),
		c.groupRotateKeyCommand(),
		c.groupListCommand(),
		c.groupEraseCommand(),
	)
	return cmd
}

// newGroupKeys генерирует пару ключей X25519 группы; ID группы - 05 + публичный ключ.
func newGroupKeys() (groupID string, pub, sec []byte, err error) {
	sec = make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(sec); err != nil {
		return "", nil, nil, errors.Wrap(err, "failed to generate group key")
	}
	pub, err = curve25519.X25519(sec, curve25519.Basepoint)
	if err != nil {
		return "", nil, nil, errors.Wrap(err, "failed to derive group key")
	}
	return validation.SessionIDPrefix + hex.EncodeToString(pub), pub, sec, nil
}

func (c *Cli) groupCreateCommand() *cobra.Command {
	var (
		members, admins []string
		timer           time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a legacy group",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			groupID, pub, sec, err := newGroupKeys()
			if err != nil {
				return err
			}

			// Создатель группы - ее администратор
			admins = append(admins, s.id.SessionID())
			update := groupupdate.NewGroup{
				CreatedAt:         time.Now().Truncate(time.Second),
				Members:           append(members, s.id.SessionID()),
				Admins:            admins,
				GroupID:           groupID,
				Name:              args[0],
				EncPubKey:         pub,
				EncSecKey:         sec,
				DisappearingTimer: timer,
			}

			groups := s.registry.UserGroups()
			if err := groupupdate.Apply(groups, groupupdate.ThreadID(groupID), update); err != nil {
				return errors.Wrap(err, "failed to create group")
			}
			if err := s.commit(ctx, groups.Object()); err != nil {
				return err
			}

			c.printf("✓ Group %q created\n", args[0])
			c.printf("Group ID: %s\n", groupID)
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&members, "member", nil, "Member session ID (repeatable)")
	cmd.Flags().StringSliceVar(&admins, "admin", nil, "Admin session ID (repeatable)")
	cmd.Flags().DurationVar(&timer, "disappearing", 0, "Disappearing messages timer")
	return cmd
}

func (c *Cli) groupMembersCommand(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <group-id> <session-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			var update groupupdate.Update = groupupdate.MembersAdded{Members: args[1:]}
			if use == "remove" {
				update = groupupdate.MembersRemoved{Members: args[1:]}
			}

			groups := s.registry.UserGroups()
			if err := groupupdate.Apply(groups, groupupdate.ThreadID(args[0]), update); err != nil {
				return errors.Wrapf(err, "failed to %s members", use)
			}
			if err := s.commit(ctx, groups.Object()); err != nil {
				return err
			}

			c.printf("✓ Group %s updated: %s %d member(s)\n", shortID(args[0]), update.Kind(), len(args)-1)
			return nil
		}),
	}
}

func (c *Cli) groupRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <group-id> <name>",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(ctx context.Context, args []string) error {
			if strings.TrimSpace(args[1]) == "" {
				return errors.New("group name cannot be empty")
			}
			return c.applyGroupUpdate(ctx, args[0], groupupdate.NameChange{Name: args[1]})
		}),
	}
}

// Новая пара ключей заменяет текущую; участники получают ее вместе с конфигурацией.
func (c *Cli) groupRotateKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <group-id>",
		Short: "Replace the group encryption key pair",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, args []string) error {
			_, pub, sec, err := newGroupKeys()
			if err != nil {
				return err
			}
			return c.applyGroupUpdate(ctx, args[0], groupupdate.EncryptionKeyPair{
				ReceivedAt: time.Now().Truncate(time.Second),
				PubKey:     pub,
				SecKey:     sec,
			})
		}),
	}
}

func (c *Cli) applyGroupUpdate(ctx context.Context, groupID string, update groupupdate.Update) error {
	s, err := c.unlocked(ctx)
	if err != nil {
		return err
	}

	groups := s.registry.UserGroups()
	if err := groupupdate.Apply(groups, groupupdate.ThreadID(groupID), update); err != nil {
		return errors.Wrapf(err, "failed to apply %s", update.Kind())
	}
	if err := s.commit(ctx, groups.Object()); err != nil {
		return err
	}

	c.printf("✓ Group %s updated: %s\n", shortID(groupID), update.Kind())
	return nil
}

func (c *Cli) groupEraseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "erase <group-id>",
		Short: "Leave a group and hide it on all devices",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			groups := s.registry.UserGroups()
			update := groupupdate.MemberLeft{Self: true}
			if err := groupupdate.Apply(groups, groupupdate.ThreadID(args[0]), update); err != nil {
				return errors.Wrap(err, "failed to erase group")
			}
			if err := s.commit(ctx, groups.Object()); err != nil {
				return err
			}

			c.printf("✓ Group %s erased\n", shortID(args[0]))
			return nil
		}),
	}
}

func (c *Cli) groupListCommand() *cobra.Command {
	var withMembers bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List legacy groups",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			rows, err := s.projector.Groups(ctx)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				c.println("No groups found.")
				return nil
			}

			for _, g := range rows {
				c.printf("%s  %-24s  members=%d admins=%d priority=%d",
					g.ID, g.Name, g.Members, g.Admins, g.Priority)
				if g.DisappearingTimer > 0 {
					c.printf(" disappearing=%s", g.DisappearingTimer)
				}
				c.println()

				if !withMembers {
					continue
				}
				members, err := s.projector.GroupMembers(ctx, g.ID)
				if err != nil {
					return err
				}
				for _, id := range slices.Sorted(maps.Keys(members)) {
					role := "member"
					if members[id] {
						role = "admin"
					}
					c.printf("    %s  %s\n", id, role)
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&withMembers, "members", false, "Show group members")
	return cmd
}
