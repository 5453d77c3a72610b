package cli

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/iudanet/confsync/internal/models"
)

func (c *Cli) contactCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Manage contacts",
	}
	cmd.AddCommand(
		c.contactSetCommand(),
		c.contactBlockCommand(),
		c.contactEraseCommand(),
		c.contactListCommand(),
	)
	return cmd
}

func (c *Cli) contactSetCommand() *cobra.Command {
	var (
		name, nickname       string
		approved, approvedMe bool
		priority             int64
		expiration           time.Duration
	)

	cmd := &cobra.Command{
		Use:   "set <session-id>",
		Short: "Create or update a contact",
		Args:  cobra.ExactArgs(1),
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "Contact display name")
	flags.StringVar(&nickname, "nickname", "", "Local nickname")
	flags.BoolVar(&approved, "approved", false, "We accepted the contact request")
	flags.BoolVar(&approvedMe, "approved-me", false, "The contact accepted our request")
	flags.Int64Var(&priority, "priority", 0, "Pin priority (0 - unpinned)")
	flags.DurationVar(&expiration, "disappear-after-read", 0, "Disappearing messages timer (0 disables)")

	cmd.RunE = c.run(func(ctx context.Context, args []string) error {
		s, err := c.unlocked(ctx)
		if err != nil {
			return err
		}

		contacts := s.registry.Contacts()
		err = contacts.Update(args[0], func(contact *models.Contact) error {
			if contact.CreatedAt.IsZero() {
				contact.CreatedAt = time.Now().Truncate(time.Second)
			}
			if flags.Changed("name") {
				contact.Name = name
			}
			if flags.Changed("nickname") {
				contact.Nickname = nickname
			}
			if flags.Changed("approved") {
				contact.Approved = approved
			}
			if flags.Changed("approved-me") {
				contact.ApprovedMe = approvedMe
			}
			if flags.Changed("priority") {
				if models.IsHidden(priority) {
					return errors.New("priority cannot be negative, use 'contact erase'")
				}
				contact.Priority = priority
			} else if contact.Hidden() {
				contact.Priority = models.PriorityUnpinned
			}
			if flags.Changed("disappear-after-read") {
				contact.ExpirationTimer = expiration
				contact.ExpirationMode = models.ExpirationAfterRead
				if expiration == 0 {
					contact.ExpirationMode = models.ExpirationNone
				}
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "failed to update contact")
		}
		if err := s.commit(ctx, contacts.Object()); err != nil {
			return err
		}

		c.printf("✓ Contact %s saved\n", shortID(args[0]))
		return nil
	})
	return cmd
}

func (c *Cli) contactBlockCommand() *cobra.Command {
	var unblock bool

	cmd := &cobra.Command{
		Use:   "block <session-id>",
		Short: "Block or unblock a contact",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			contacts := s.registry.Contacts()
			err = contacts.Update(args[0], func(contact *models.Contact) error {
				contact.Blocked = !unblock
				return nil
			})
			if err != nil {
				return errors.Wrap(err, "failed to update contact")
			}
			if err := s.commit(ctx, contacts.Object()); err != nil {
				return err
			}

			if unblock {
				c.printf("✓ Contact %s unblocked\n", shortID(args[0]))
			} else {
				c.printf("✓ Contact %s blocked\n", shortID(args[0]))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&unblock, "unblock", false, "Unblock the contact")
	return cmd
}

func (c *Cli) contactEraseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "erase <session-id>",
		Short: "Hide a contact on all devices",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			contacts := s.registry.Contacts()
			found, err := contacts.Erase(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to erase contact")
			}
			if !found {
				return errors.Newf("contact %s not found", args[0])
			}
			if err := s.commit(ctx, contacts.Object()); err != nil {
				return err
			}

			c.printf("✓ Contact %s erased\n", shortID(args[0]))
			return nil
		}),
	}
}

func (c *Cli) contactListCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			rows, err := s.projector.Contacts(ctx, all)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				c.println("No contacts found.")
				return nil
			}

			c.printf("%-66s  %-20s  %-8s  %-11s  %-7s  %s\n",
				"SESSION ID", "NAME", "APPROVED", "APPROVED ME", "BLOCKED", "PRIORITY")
			for _, r := range rows {
				name := r.Name
				if r.Nickname != "" {
					name = r.Nickname
				}
				c.printf("%-66s  %-20s  %-8s  %-11s  %-7s  %d\n",
					r.SessionID, name, yesNo(r.Approved), yesNo(r.ApprovedMe), yesNo(r.Blocked), r.Priority)
			}
			c.println()
			c.printf("Total: %d contact(s)\n", len(rows))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include erased contacts")
	return cmd
}
