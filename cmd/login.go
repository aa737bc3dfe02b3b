package cmd

import (
	"fmt"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var (
	loginSave bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check credentials and load your conversations",
	Long: `Authenticate against the backend and load every conversation it holds
for the user. With --save the username is written to the config file so later
commands only need the password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := login(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		return finishLogin(cmd, mgr, "Logged in")
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in with it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials(cmd)
		if err != nil {
			return err
		}
		mgr := newManager(internal.NewClient(cfg))
		if _, err := mgr.Register(cmd.Context(), creds); err != nil {
			return err
		}
		return finishLogin(cmd, mgr, "Registered")
	},
}

func finishLogin(cmd *cobra.Command, mgr *internal.SessionManager, verb string) error {
	user := mgr.Username()
	internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s as %s (%d conversation(s))", verb, user, len(mgr.Sessions())))

	if !loginSave {
		return nil
	}
	path := configPath
	if path == "" {
		p, err := internal.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg.Username = user
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	internal.PrintInfo(cmd.OutOrStdout(), fmt.Sprintf("Saved username to %s", path))
	return nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	loginCmd.Flags().BoolVar(&loginSave, "save", false, "Remember the username in the config file")
	registerCmd.Flags().BoolVar(&loginSave, "save", false, "Remember the username in the config file")
}
