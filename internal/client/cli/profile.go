package cli

import (
	"context"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/iudanet/confsync/internal/models"
)

func (c *Cli) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change the account profile",
	}
	cmd.AddCommand(c.profileSetCommand(), c.profileShowCommand())
	return cmd
}

func (c *Cli) profileSetCommand() *cobra.Command {
	var name, pictureURL, pictureKey string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change display name or profile picture",
		Args:  cobra.NoArgs,
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "Display name")
	flags.StringVar(&pictureURL, "picture-url", "", "Profile picture URL")
	flags.StringVar(&pictureKey, "picture-key", "", "Profile picture key (32 bytes hex)")

	cmd.RunE = c.run(func(ctx context.Context, args []string) error {
		if !flags.Changed("name") && !flags.Changed("picture-url") {
			return errors.New("nothing to change: pass --name or --picture-url")
		}

		var picture models.ProfilePicture
		if flags.Changed("picture-url") {
			picture.URL = pictureURL
			if pictureURL != "" {
				key, err := hex.DecodeString(pictureKey)
				if err != nil || len(key) != models.ProfileKeyLength {
					return errors.Newf("--picture-key must be %d bytes hex", models.ProfileKeyLength)
				}
				picture.Key = key
			}
		}

		s, err := c.unlocked(ctx)
		if err != nil {
			return err
		}

		profile := s.registry.UserProfile()
		if flags.Changed("name") {
			if err := profile.SetName(name); err != nil {
				return errors.Wrap(err, "failed to set name")
			}
		}
		if flags.Changed("picture-url") {
			if err := profile.SetPicture(picture); err != nil {
				return errors.Wrap(err, "failed to set picture")
			}
		}
		if err := s.commit(ctx, profile.Object()); err != nil {
			return err
		}

		c.println("✓ Profile updated")
		return nil
	})
	return cmd
}

func (c *Cli) profileShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the account profile",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, args []string) error {
			s, err := c.unlocked(ctx)
			if err != nil {
				return err
			}

			profile, err := s.projector.Profile(ctx)
			if err != nil {
				return err
			}
			c.printf("Name:    %s\n", profile.Name)
			if profile.PictureURL != "" {
				c.printf("Picture: %s\n", profile.PictureURL)
			}
			return nil
		}),
	}
}
