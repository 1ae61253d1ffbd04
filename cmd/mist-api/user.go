package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mist-hpc/mist/internal/service"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type userAddOptions struct {
	Organization string
	Password     string
	Admin        bool
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the users allowed to log in",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	o := &userAddOptions{}
	cmd := &cobra.Command{
		Use:          "add USERNAME",
		Short:        "Create a login user",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args[0])
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *userAddOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Organization, "org", "o", "", "Organization the user belongs to.")
	fs.StringVarP(&o.Password, "password", "p", "", "Password of the user.")
	fs.BoolVar(&o.Admin, "admin", false, "Grant the user access to every job.")
}

func (o *userAddOptions) Validate() error {
	if o.Password == "" {
		return errors.New("--password is required")
	}
	return nil
}

func (o *userAddOptions) Run(ctx context.Context, username string) error {
	cfg, teardown, err := setup()
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	defer teardown()

	if cfg.Database.Type == store.TypeMemory {
		return errors.New("users of the in-memory registry only live as long as the server, use MIST_AUTH_ADMIN_PASSWORD instead")
	}

	db, err := store.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("initializing data store: %w", err)
	}
	s := store.NewStore(db)
	defer s.Close()

	u, err := service.NewAuthService(s, nil).CreateUser(ctx, username, o.Organization, o.Password, o.Admin)
	if err != nil {
		return err
	}

	zap.S().Infof("created user %s (organization %q, admin %t)", u.Username, u.Organization, u.Admin)
	return nil
}
