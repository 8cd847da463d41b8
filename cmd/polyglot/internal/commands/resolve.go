package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type ResolveCmd struct {
	Principal string `arg:"" help:"user:<id|username> or key:<id>"`
	Project   string `arg:"" help:"Project id or slug"`
	Language  string `help:"Resolve for an operation on this language tag"`
	Explain   bool   `help:"Show which rule decided the level"`
}

func (c *ResolveCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	principal, err := s.principal(ctx, c.Principal)
	if err != nil {
		return err
	}
	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}

	var languageID *uuid.UUID
	if c.Language != "" {
		ids, err := s.languageIDs(ctx, projectID, []string{c.Language})
		if err != nil {
			return err
		}
		languageID = &ids[0]
	}

	res, err := s.svc.Resolver().Explain(ctx, principal, projectID, languageID)
	if err != nil {
		return err
	}

	fmt.Println(res.Level)
	if !c.Explain {
		return nil
	}

	fmt.Printf("source:    %s\n", res.Source)
	if res.Governing != nil {
		fmt.Printf("governing: %s on %s (%s)\n", res.Governing.Level, res.Governing.Scope, res.Governing.PermissionID)
	}
	if res.UserLevel != nil {
		fmt.Printf("user:      %s\n", *res.UserLevel)
	}
	if res.Ceiling != nil {
		fmt.Printf("ceiling:   %s\n", *res.Ceiling)
	}
	if res.LanguageDenied {
		fmt.Printf("language:  %s is outside the granted languages\n", c.Language)
	}
	return nil
}
