package commands

import (
	"context"
	"fmt"
)

type UserCmd struct {
	Create UserCreateCmd `cmd:"" help:"Create a user account"`
}

type UserCreateCmd struct {
	Username string `arg:"" help:"Unique username, usually the login email"`
	Name     string `help:"Display name"`
}

func (c *UserCreateCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := s.svc.Users().Create(ctx, c.Username, c.Name)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created user %s (%s)\n", user.Username, user.UserID)
	return nil
}
