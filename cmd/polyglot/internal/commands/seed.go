package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/polyglot/internal/seed"
)

type SeedCmd struct {
	File string `arg:"" help:"YAML fixture file" type:"existingfile"`
}

func (c *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	fixture, err := seed.Load(c.File)
	if err != nil {
		return err
	}

	res, err := seed.Apply(ctx, s.svc, fixture)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %d users, %d organizations, %d projects\n", len(res.Users), len(res.Organizations), len(res.Projects))

	if len(res.APIKeys) > 0 {
		fmt.Println()
		fmt.Println("API keys (secrets are shown once):")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPROJECT\tKEY ID\tSECRET")
		for _, k := range res.APIKeys {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.Name, k.Project, k.KeyID, k.Secret)
		}
		return w.Flush()
	}

	return nil
}
