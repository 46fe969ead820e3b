package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

// addUser updates the user matching uname or email, or creates it in the organization orgSlug.
func (cli *commandLine) addUser(ctx context.Context, orgSlug, uname, email, pwd string, isAdmin bool) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	o, err := cli.orgRepo.GetOrg(ctx, org.GetFilter{Slug: core.CleanString(orgSlug, true /* lower */)})
	if err != nil {
		return user.User{}, errors.Wrapf(err, "organization %q", orgSlug)
	}

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil && !core.IsNotFound(err) {
		return user.User{}, err
	}
	create := err != nil
	if !create && usr.OrgID != o.ID {
		return user.User{}, errors.Errorf("user %q belongs to another organization", usr.Username)
	}

	now := time.Now().UTC()
	var excluded []user.User
	if create {
		usr = user.User{OrgID: o.ID, Name: uname, CreatedAt: now}
	} else {
		excluded = append(excluded, usr)
	}
	if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email, excluded); err != nil {
		return user.User{}, err
	}
	usr.Username = uname
	usr.Email = email
	usr.UpdatedAt = now
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}

	if create {
		return cli.usrRepo.CreateUser(ctx, usr)
	}
	return cli.usrRepo.UpdateUser(ctx, usr)
}

func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if core.IsNotFound(err) {
		return cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}
	return usr, err
}
