package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mist-hpc/mist/internal/client"
	"github.com/spf13/cobra"
)

type LogoutOptions struct {
	GlobalOptions
}

func NewCmdLogout() *cobra.Command {
	o := &LogoutOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the saved session and forget the credential.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *LogoutOptions) Run(ctx context.Context) error {
	cfg, err := client.ParseConfigFile(o.ConfigFilePath)
	if err != nil {
		return fmt.Errorf("%w (run 'mist login' first)", err)
	}

	if cfg.Credential != nil && !cfg.Credential.Expired(time.Now()) {
		if err := client.NewFromConfig(cfg).Logout(ctx); err != nil && !alreadyLoggedOut(err) {
			return fmt.Errorf("logging out: %w", err)
		}
	}

	if err := client.WriteConfig(o.ConfigFilePath, cfg.Service.Server, nil); err != nil {
		return err
	}
	fmt.Fprintf(o.out, "Logged out of %s\n", cfg.Service.Server)
	return nil
}

// alreadyLoggedOut is true when the gateway has nothing to revoke: the session
// is gone, or the gateway issues self contained tokens that simply expire.
func alreadyLoggedOut(err error) bool {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusUnauthorized
}
