package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/access"
	"github.com/wolfeidau/polyglot/internal/models"
)

type APIKeyCmd struct {
	Create     APIKeyCreateCmd     `cmd:"" help:"Create an API key acting for a user on one project"`
	Revoke     APIKeyRevokeCmd     `cmd:"" help:"Revoke an API key"`
	SetCeiling APIKeySetCeilingCmd `cmd:"" help:"Change or clear the ceiling of an API key"`
	List       APIKeyListCmd       `cmd:"" help:"List the API keys of a project"`
}

type APIKeyCreateCmd struct {
	User        string        `arg:"" help:"User id or username the key acts for"`
	Project     string        `arg:"" help:"Project id or slug"`
	Ceiling     string        `help:"Highest level the key may use, the user's level when empty"`
	Description string        `help:"What the key is used for"`
	ExpiresIn   time.Duration `help:"Expire the key after this long, the --api-key-ttl default when zero"`
}

func (c *APIKeyCreateCmd) Run(ctx context.Context, globals *Globals) error {
	ceiling, err := parseOptionalLevel(c.Ceiling)
	if err != nil {
		return err
	}

	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	userID, err := s.userID(ctx, c.User)
	if err != nil {
		return err
	}
	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}

	in := access.CreateAPIKeyInput{
		UserID:      userID,
		ProjectID:   projectID,
		Ceiling:     ceiling,
		Description: c.Description,
	}
	if c.ExpiresIn > 0 {
		expiresAt := time.Now().Add(c.ExpiresIn)
		in.ExpiresAt = &expiresAt
	}

	created, err := s.svc.APIKeys().Create(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	fmt.Printf("Created API key %s\n", created.Key.KeyID)
	fmt.Printf("Secret (shown once): %s\n", created.Secret)
	return nil
}

type APIKeyRevokeCmd struct {
	KeyID uuid.UUID `arg:"" help:"API key id"`
}

func (c *APIKeyRevokeCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := s.svc.APIKeys().Revoke(ctx, c.KeyID); err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %s\n", c.KeyID)
	return nil
}

type APIKeySetCeilingCmd struct {
	KeyID   uuid.UUID `arg:"" help:"API key id"`
	Ceiling string    `arg:"" optional:"" help:"New ceiling, omit to clear it"`
}

func (c *APIKeySetCeilingCmd) Run(ctx context.Context, globals *Globals) error {
	ceiling, err := parseOptionalLevel(c.Ceiling)
	if err != nil {
		return err
	}

	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	key, err := s.svc.APIKeys().SetCeiling(ctx, c.KeyID, ceiling)
	if err != nil {
		return fmt.Errorf("failed to set ceiling: %w", err)
	}

	fmt.Printf("API key %s ceiling is %s\n", key.KeyID, ceilingName(key.Ceiling))
	return nil
}

type APIKeyListCmd struct {
	Project string `arg:"" help:"Project id or slug"`
}

func (c *APIKeyListCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}

	keys, err := s.svc.APIKeys().ListForProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to list api keys: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY ID\tPREFIX\tUSER ID\tCEILING\tEXPIRES\tDESCRIPTION")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", k.KeyID, k.KeyPrefix, k.UserID, ceilingName(k.Ceiling), expires, k.Description)
	}
	return w.Flush()
}

func ceilingName(ceiling *models.PermissionLevel) string {
	if ceiling == nil {
		return "none"
	}
	return ceiling.String()
}
