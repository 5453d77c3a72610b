// Package cli - команды клиента синхронизации конфигурации.
package cli

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/client/identity"
	"github.com/iudanet/confsync/internal/client/iocli"
	"github.com/iudanet/confsync/internal/client/storage/boltdb"
	"github.com/iudanet/confsync/internal/config"
	"github.com/iudanet/confsync/internal/logging"
)

// BuildInfo - версия сборки, задается через ldflags.
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// Cli хранит состояние одного запуска клиента.
type Cli struct {
	io             iocli.IO
	viper          *viper.Viper
	logger         *zap.Logger
	storage        *boltdb.Storage
	identity       *identity.Service
	session        *session
	cfgFile        string
	passphraseFile string
	cfg            config.ClientConfig
}

// NewRootCommand собирает дерево команд клиента.
// Флаги привязываются к ключам v; значения из файла и окружения
// читаются перед выполнением команды.
func NewRootCommand(v *viper.Viper, io iocli.IO, build BuildInfo) *cobra.Command {
	c := &Cli{io: io, viper: v}

	root := &cobra.Command{
		Use:           "confsync",
		Short:         "Decentralized configuration sync client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(io)
	root.SetErr(io)

	c.setupFlags(root)

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				c.io.Printf("confsync client\n")
				c.io.Printf("Version:    %s\n", build.Version)
				c.io.Printf("Build Date: %s\n", build.BuildDate)
				c.io.Printf("Git Commit: %s\n", build.GitCommit)
			},
		},
		c.initCommand(),
		c.statusCommand(),
		c.contactCommand(),
		c.groupCommand(),
		c.communityCommand(),
		c.profileCommand(),
		c.readCommand(),
		c.syncCommand(),
		c.pullCommand(),
		c.resetCommand(),
	)

	return root
}

func (c *Cli) setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(c.viper)
	defaults := config.NewViper()

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&c.passphraseFile, "passphrase-file", "", "Path to file containing the passphrase")
	flags.String("swarm-url", defaults.GetString("swarm.url"), "Swarm node URL")
	flags.String("storage-path", defaults.GetString("storage.path"), "Path to local config database")
	flags.String("projection-path", defaults.GetString("projection.path"), "Path to local projection database")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	for key, flag := range map[string]string{
		"swarm.url":       "swarm-url",
		"storage.path":    "storage-path",
		"projection.path": "projection-path",
		"log.level":       "log-level",
	} {
		if err := c.viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// open загружает конфигурацию и открывает локальное хранилище.
func (c *Cli) open(ctx context.Context) error {
	if c.storage != nil {
		return nil
	}

	if c.cfgFile != "" {
		c.viper.SetConfigFile(c.cfgFile)
		if err := c.viper.ReadInConfig(); err != nil {
			return errors.Wrap(err, "failed to read config file")
		}
	}

	cfg, err := config.LoadClient(c.viper)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, err := logging.NewConsoleLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	c.logger = logger

	st, err := boltdb.New(ctx, cfg.StoragePath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	c.storage = st
	c.identity = identity.NewService(st, logger)
	return nil
}

// run оборачивает команду: ресурсы запуска закрываются и при ошибке.
func (c *Cli) run(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer func() {
			if err := c.close(); err != nil {
				c.io.Printf("Warning: %v\n", err)
			}
		}()
		return fn(cmd.Context(), args)
	}
}

func (c *Cli) close() error {
	var errs error
	if c.session != nil {
		c.session.close(context.Background())
		c.session = nil
	}
	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close database"))
		}
		c.storage = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return errs
}

// unlocked возвращает разблокированную сессию, открывая ее при первом обращении.
func (c *Cli) unlocked(ctx context.Context) (*session, error) {
	if c.session != nil {
		return c.session, nil
	}
	if err := c.open(ctx); err != nil {
		return nil, err
	}

	passphrase, err := c.readPassphrase(false)
	if err != nil {
		return nil, err
	}
	id, err := c.identity.Unlock(ctx, passphrase)
	if err != nil {
		if errors.Is(err, identity.ErrWrongPassphrase) {
			return nil, errors.New("wrong passphrase")
		}
		return nil, errors.Wrap(err, "failed to unlock account. Run 'confsync init' first")
	}

	s, err := c.startSession(ctx, id)
	if err != nil {
		id.Wipe()
		return nil, err
	}
	c.session = s
	return s, nil
}

func (c *Cli) printf(format string, a ...any) {
	c.io.Printf(format, a...)
}

func (c *Cli) println(a ...any) {
	c.io.Println(a...)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return fmt.Sprintf("%s...%s", id[:8], id[len(id)-6:])
}
