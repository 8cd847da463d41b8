package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/polyglot/internal/access"
	"github.com/wolfeidau/polyglot/internal/models"
)

type LanguageCmd struct {
	Add    LanguageAddCmd    `cmd:"" help:"Add a language to a project"`
	Remove LanguageRemoveCmd `cmd:"" help:"Remove a language from a project"`
	List   LanguageListCmd   `cmd:"" help:"List the languages of a project"`
}

type LanguageAddCmd struct {
	Project      string `arg:"" help:"Project id or slug"`
	Abbreviation string `arg:"" help:"Language tag, e.g. en or de-AT"`
	Name         string `arg:"" help:"Language name"`
	OriginalName string `help:"Name in the language itself"`
	FlagEmoji    string `help:"Flag emoji"`
}

func (c *LanguageAddCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}

	lang, err := s.svc.Languages().Add(ctx, access.AddLanguageInput{
		ProjectID:    projectID,
		Abbreviation: c.Abbreviation,
		Name:         c.Name,
		OriginalName: c.OriginalName,
		FlagEmoji:    c.FlagEmoji,
	})
	if err != nil {
		return fmt.Errorf("failed to add language: %w", err)
	}

	fmt.Printf("Added language %s (%s)\n", lang.Abbreviation, lang.LanguageID)
	return nil
}

type LanguageRemoveCmd struct {
	Project      string `arg:"" help:"Project id or slug"`
	Abbreviation string `arg:"" help:"Language tag"`
}

func (c *LanguageRemoveCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}
	ids, err := s.languageIDs(ctx, projectID, []string{c.Abbreviation})
	if err != nil {
		return err
	}

	if err := s.svc.Languages().Remove(ctx, ids[0]); err != nil {
		return fmt.Errorf("failed to remove language: %w", err)
	}

	fmt.Printf("Removed language %s\n", c.Abbreviation)
	return nil
}

type LanguageListCmd struct {
	Project string `arg:"" help:"Project id or slug"`
}

func (c *LanguageListCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}

	langs, err := s.svc.Languages().List(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to list languages: %w", err)
	}

	for _, l := range langs {
		fmt.Printf("%-10s %s\n", l.Abbreviation, displayName(l))
	}
	return nil
}

func displayName(l *models.Language) string {
	name := l.Name
	if l.OriginalName != "" && l.OriginalName != l.Name {
		name += " (" + l.OriginalName + ")"
	}
	if l.FlagEmoji != "" {
		name = l.FlagEmoji + " " + name
	}
	return name
}
