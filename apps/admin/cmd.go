package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
	"github.com/onlineimmigrant/move-plan-next-sub025/storage/database"
)

var (
	readPasswordFunc = func() ([]byte, error) { return term.ReadPassword(int(syscall.Stdin)) } // mockable
	migrateFunc      = database.Migrate                                                        // mockable

	errNoPassword = errors.New("a password is required")
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	orgRepo org.Repository
	logger  core.Logger
	out     io.Writer
}

func (cli *commandLine) stdout() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) root() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "Administration tasks of the MovePlan backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(cli.stdout())
	rootCmd.SetErr(cli.stdout())

	rootCmd.AddCommand(
		cli.migrateCmd(),
		cli.addOrgCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
	)
	return rootCmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, fix) over the embedded migrations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.report(cli.migrate(cmd.Context(), args[0], args[1:]...))
		},
	}
}

func (cli *commandLine) addOrgCmd() *cobra.Command {
	var name, slug string
	cmd := &cobra.Command{
		Use:   "addorg",
		Short: "Create an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := cli.addOrg(cmd.Context(), name, slug)
			if err != nil {
				return cli.report(err)
			}
			fmt.Fprintf(cli.stdout(), "organization %q created with id %s\n", o.Slug, o.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "The organization's name")
	cmd.Flags().StringVar(&slug, "slug", "", "The organization's slug, derived from the name when empty")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var uname, email, orgSlug string
	var isAdmin bool
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update a user; the password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return cli.report(err)
			}
			usr, err := cli.addUser(cmd.Context(), orgSlug, uname, email, pwd, isAdmin)
			if err != nil {
				return cli.report(err)
			}
			fmt.Fprintf(cli.stdout(), "user %q saved with id %s\n", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The user's username")
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	cmd.Flags().StringVar(&orgSlug, "org", "", "The slug of the user's organization")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Grant every role to the user")
	for _, f := range []string{"username", "email", "org"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return cli.report(err)
			}
			return cli.report(cli.resetPassword(cmd.Context(), uname, pwd))
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.stdout(), "Enter password:")
	pwd, err := readPasswordFunc()
	fmt.Fprintln(cli.stdout())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}

// report logs err before handing it back to cobra.
func (cli *commandLine) report(err error) error {
	if err != nil && cli.logger != nil {
		cli.logger.Error(err.Error(), err)
	}
	return err
}
