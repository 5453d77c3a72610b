package cli

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	clientsync "github.com/iudanet/confsync/internal/client/sync"
	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/models"
)

func (c *Cli) pullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Fetch and merge config changes from the swarm",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}
			return c.pull(ctx, s)
		}),
	}
}

func (c *Cli) pull(ctx context.Context, s *session) error {
	result, err := s.reconciler.Pull(ctx)
	if result != nil {
		c.printf("Fetched:   %d message(s)\n", result.Fetched)
		if result.Discarded > 0 {
			c.printf("Discarded: %d message(s) failed verification\n", result.Discarded)
		}
		namespaces := make([]models.Namespace, 0, len(result.Changed))
		for ns := range result.Changed {
			namespaces = append(namespaces, ns)
		}
		sort.Slice(namespaces, func(i, j int) bool { return namespaces[i] < namespaces[j] })
		for _, ns := range namespaces {
			c.printf("Merged:    %s (%d entries changed)\n", ns, len(result.Changed[ns]))
		}
	}
	if err != nil {
		return errors.Wrap(err, "pull failed")
	}
	return nil
}

func (c *Cli) syncCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull remote changes and push local ones",
		Long: "Pull remote changes, merge them, then push local changes and delete\n" +
			"obsolete messages from the swarm. With --watch keeps running and\n" +
			"synchronizes periodically until interrupted.",
		Args: cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}
			if watch {
				return c.watch(ctx, s)
			}

			c.println("=== Synchronization ===")
			if err := c.pull(ctx, s); err != nil {
				return err
			}

			result := s.reconciler.Run(ctx)
			c.printResult(result)
			switch result.Status {
			case clientsync.StatusSent:
				c.println("✓ Synchronization completed")
				return nil
			case clientsync.StatusRetry:
				return errors.Wrap(result.Err, "sync delayed, try again later")
			default:
				return errors.Wrapf(result.Err, "sync %s", result.Status)
			}
		}),
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep synchronizing until interrupted")
	return cmd
}

func (c *Cli) printResult(result clientsync.Result) {
	c.printf("Pushed:    %d object(s)\n", len(result.Pushed))
	c.printf("Deleted:   %d obsolete message(s)\n", result.Deleted)
	if len(result.Skipped) > 0 {
		c.printf("Skipped:   %d object(s) with local errors\n", len(result.Skipped))
	}
}

// watch запускает Scheduler: проходы не чаще min interval, повторы
// с backoff после временных сбоев, периодический pull.
func (c *Cli) watch(ctx context.Context, s *session) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := clientsync.NewScheduler(s.reconciler, s.logger,
		clientsync.WithMinInterval(c.cfg.MinInterval),
		clientsync.WithBackoff(clientsync.NewBackoff(c.cfg.BackoffInitial, c.cfg.BackoffMax, 2, 0.2)),
		clientsync.WithResultHook(func(result clientsync.Result) {
			if result.Status == clientsync.StatusSent && len(result.Pushed) > 0 {
				c.printf("%s pushed %d object(s)\n", time.Now().Format(time.TimeOnly), len(result.Pushed))
			}
		}))

	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()

	c.printf("Watching for changes every %s, press Ctrl+C to stop\n", c.cfg.MinInterval)
	ticker := time.NewTicker(c.cfg.MinInterval)
	defer ticker.Stop()

	scheduler.Schedule()
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-ticker.C:
			if _, err := s.reconciler.Pull(ctx); err != nil {
				s.logger.Warn("periodic pull failed", zap.Error(err))
			}
			if needsSync(s.registry) {
				scheduler.Schedule()
			}
		}
	}
}

// needsSync - есть неотправленные изменения или сообщения, которые
// swarm еще не удалил.
func needsSync(registry *configstore.Registry) bool {
	if len(registry.NeedsPush()) > 0 {
		return true
	}
	for _, obj := range registry.Objects() {
		if len(obj.ObsoleteHashes()) > 0 {
			return true
		}
	}
	return false
}
