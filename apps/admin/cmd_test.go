package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
	"github.com/onlineimmigrant/move-plan-next-sub025/storage/database/dummy"
	"github.com/onlineimmigrant/move-plan-next-sub025/testutil"
)

var (
	usrRepo user.Repository
	orgRepo org.Repository
)

func setup(t *testing.T) *commandLine {
	db := dummydb.Open()
	usrRepo = dummydb.NewUserRepository(db)
	orgRepo = dummydb.NewOrgRepository(db)

	return &commandLine{
		usrRepo: usrRepo,
		orgRepo: orgRepo,
		logger:  core.NopLogger{},
		out:     new(bytes.Buffer),
	}
}

func run(cli *commandLine, args ...string) error {
	cmd := cli.root()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func withPassword(pwd string) {
	readPasswordFunc = func() ([]byte, error) { return []byte(pwd), nil }
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var ran []string
	migrateFunc = func(_ context.Context, _ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s)"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, run(cli, tt.args...))
		})
	}
	assert.Equal(t, []string{"up", "up-by-one", "up-to", "down", "down-to", "redo", "reset", "status", "version", "fix"}, ran)
}

func Test_commandLine_addOrg(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "name required", args: []string{"addorg"}, wantErrStr: `required flag(s) "name" not set`},
		{name: "create", args: []string{"addorg", "--name", "Acme School"}},
		{name: "slug taken", args: []string{"addorg", "--name", "Acme", "--slug", "ACME-school"}, wantErr: errOrgExists},
		{name: "explicit slug", args: []string{"addorg", "--name", "Globex", "--slug", "gbx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, run(cli, tt.args...))
		})
	}

	o, err := orgRepo.GetOrg(context.Background(), org.GetFilter{Slug: "acme-school"})
	require.NoError(t, err)
	assert.Equal(t, "Acme School", o.Name)
	assert.True(t, o.IsActive)
	_, err = orgRepo.GetOrg(context.Background(), org.GetFilter{Slug: "gbx"})
	assert.NoError(t, err)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	acme := testutil.CreateOrg(t, orgRepo, "Acme", "acme", true)
	globex := testutil.CreateOrg(t, orgRepo, "Globex", "globex", true)
	testutil.CreateUser(t, usrRepo, globex.ID, "Other", "other", "other@test.cd", "pwd", nil, true)

	tests := []cliTest{
		{name: "flags required", args: []string{"adduser", "--username", "jo"}, pwd: "pwd", wantErrStr: "required flag(s)"},
		{name: "no password", args: []string{"adduser", "--username", "jo", "--email", "jo@test.cd", "--org", "acme"}, wantErr: errNoPassword},
		{name: "unknown org", args: []string{"adduser", "--username", "jo", "--email", "jo@test.cd", "--org", "lol"}, pwd: "pwd", wantErr: org.ErrNotFound},
		{name: "email taken", args: []string{"adduser", "--username", "jo", "--email", "other@test.cd", "--org", "acme"}, pwd: "pwd", wantErrStr: "another organization"},
		{name: "create", args: []string{"adduser", "--username", "Jo", "--email", "jo@test.cd", "--org", "acme"}, pwd: "pwd"},
		{name: "promote", args: []string{"adduser", "--username", "jo", "--email", "JO@test.cd", "--org", "ACME", "--admin"}, pwd: "new-pwd"},
	}
	for _, tt := range tests {
		withPassword(tt.pwd)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, run(cli, tt.args...))
		})
	}

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "jo"})
	require.NoError(t, err)
	assert.Equal(t, acme.ID, usr.OrgID)
	assert.Equal(t, "jo@test.cd", usr.Email)
	assert.Equal(t, user.AllRoles, usr.Roles)
	assert.True(t, usr.Active())
	assert.NoError(t, usr.CheckPassword("new-pwd"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	o := testutil.CreateOrg(t, orgRepo, "Acme", "acme", true)
	usr := testutil.CreateUser(t, usrRepo, o.ID, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "unknown command", args: []string{"lol"}, wantErrStr: "unknown command"},
		{name: "no args", args: []string{"resetpassword"}, pwd: "lol", wantErrStr: `required flag(s) "username" not set`},
		{name: "no password", args: []string{"resetpassword", "--username", "awe"}, wantErr: errNoPassword},
		{name: "user not found", args: []string{"resetpassword", "--username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "--username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "--username", "AWE@test.cd"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		withPassword(tt.pwd)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, run(cli, tt.args...))
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}
