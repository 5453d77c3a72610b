package cli

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/iudanet/confsync/internal/client/identity"
	"github.com/iudanet/confsync/internal/client/storage"
)

func (c *Cli) initCommand() *cobra.Command {
	var (
		seedHex  string
		showSeed bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new account or import an existing one",
		Long: "Create a new account identity on this device. Pass --seed with the\n" +
			"seed of an existing account to link this device to it.",
		Args: cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			return c.runInit(ctx, seedHex, showSeed)
		}),
	}
	cmd.Flags().StringVar(&seedHex, "seed", "", "Hex seed of an existing account")
	cmd.Flags().BoolVar(&showSeed, "show-seed", false, "Print the account seed for linking other devices")
	return cmd
}

func (c *Cli) runInit(ctx context.Context, seedHex string, showSeed bool) error {
	if err := c.open(ctx); err != nil {
		return err
	}

	passphrase, err := c.readPassphrase(true)
	if err != nil {
		return err
	}

	var id *identity.Identity
	if seedHex != "" {
		seed, decodeErr := hex.DecodeString(seedHex)
		if decodeErr != nil {
			return errors.Wrap(decodeErr, "seed must be hex encoded")
		}
		id, err = c.identity.Import(ctx, seed, passphrase)
	} else {
		id, err = c.identity.Create(ctx, passphrase)
	}
	if err != nil {
		if errors.Is(err, identity.ErrIdentityExists) {
			return errors.New("account already exists on this device")
		}
		return err
	}
	defer id.Wipe()

	c.println("✓ Account created")
	c.println()
	c.printf("Session ID: %s\n", id.SessionID())
	c.printf("Swarm key:  %s\n", id.PublicKey())
	if showSeed {
		c.println()
		c.printf("Seed: %s\n", hex.EncodeToString(id.Seed()))
		c.println("Keep the seed secret: it gives full access to the account.")
	}
	if seedHex != "" {
		c.println()
		c.println("Run 'confsync pull' to fetch the account configuration.")
	}
	return nil
}

func (c *Cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show account and sync status",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			return c.runStatus(ctx)
		}),
	}
}

func (c *Cli) runStatus(ctx context.Context) error {
	if err := c.open(ctx); err != nil {
		return err
	}

	info, err := c.identity.Info(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			c.println("Status: No account")
			c.println()
			c.println("Run 'confsync init' to create one.")
			return nil
		}
		return errors.Wrap(err, "failed to get account")
	}

	c.println("=== Account ===")
	c.printf("Session ID: %s\n", info.SessionID)
	c.printf("Swarm key:  %s\n", info.PublicKey)
	c.printf("Created:    %s\n", time.Unix(info.CreatedAt, 0).Format(time.RFC3339))
	c.printf("Swarm URL:  %s\n", c.cfg.SwarmURL)

	s, err := c.unlocked(ctx)
	if err != nil {
		return err
	}

	c.println()
	c.println("=== Config ===")
	objects := s.registry.Objects()
	if len(objects) == 0 {
		c.println("No config stored yet")
	}
	for _, obj := range objects {
		c.printf("%-20s seqno=%-4d state=%-14s hashes=%d\n",
			obj.Namespace(), obj.Seqno(), obj.State(), len(obj.CurrentHashes()))
	}

	c.println()
	last, err := c.storage.GetLastSyncTimestamp(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get last sync time")
	}
	if last == 0 {
		c.println("Last sync: never")
	} else {
		c.printf("Last sync: %s\n", time.UnixMilli(last).Format(time.RFC3339))
	}

	pending := len(s.registry.NeedsPush())
	backlog, err := c.storage.GetPendingDeletions(ctx, info.PublicKey)
	if err != nil {
		return errors.Wrap(err, "failed to get pending deletions")
	}
	if pending > 0 || len(backlog) > 0 {
		c.printf("⚠️  Pending: %d object(s) to push, %d message(s) to delete\n", pending, len(backlog))
		c.println("Run 'confsync sync' to synchronize with the swarm.")
	} else {
		c.println("✓ All config synchronized")
	}

	pushes, err := s.projector.ConfirmedPushes(ctx)
	if err == nil {
		c.printf("Confirmed pushes recorded: %d\n", pushes)
	}
	return nil
}
