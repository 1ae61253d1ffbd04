package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mist-hpc/mist/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type LoginOptions struct {
	GlobalOptions

	Username string
	Password string
}

func DefaultLoginOptions() *LoginOptions {
	return &LoginOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdLogin() *cobra.Command {
	o := DefaultLoginOptions()
	cmd := &cobra.Command{
		Use:   "login SERVER_URL",
		Short: "Log in to a job gateway and save the credential.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *LoginOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Username, "username", "u", o.Username, "Username to log in with. Without it the server URL is saved with no credential.")
	fs.StringVarP(&o.Password, "password", "p", o.Password, "Password of the user.")
}

func (o *LoginOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	cfg := client.NewDefault()
	cfg.Service.Server = args[0]
	if err := cfg.Validate(); err != nil {
		return err
	}

	if o.Username != "" && o.Password == "" {
		return errors.New("--password is required with --username")
	}
	return nil
}

func (o *LoginOptions) Run(ctx context.Context, args []string) error {
	server := args[0]

	if o.Username == "" {
		if err := client.WriteConfig(o.ConfigFilePath, server, nil); err != nil {
			return err
		}
		fmt.Fprintf(o.out, "Saved server %s\n", server)
		return nil
	}

	cred, err := client.NewGatewayClient(server, nil).Login(ctx, o.Username, o.Password)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	saved := &client.Credential{Type: cred.Type, Token: cred.Token, ExpiresAt: cred.ExpiresAt}
	if err := client.WriteConfig(o.ConfigFilePath, server, saved); err != nil {
		return err
	}

	fmt.Fprintf(o.out, "Logged in to %s as %s\n", server, o.Username)
	return nil
}
