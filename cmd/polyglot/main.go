package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/polyglot/cmd/polyglot/internal/commands"
	"github.com/wolfeidau/polyglot/internal/access"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Tracing bool `help:"Export traces and metrics over OTLP" env:"POLYGLOT_TRACING"`
		Version kong.VersionFlag

		Store  commands.StoreFlags `embed:""`
		Access access.Config       `embed:""`

		Migrate    commands.MigrateCmd    `cmd:"" help:"Apply pending PostgreSQL schema migrations"`
		Seed       commands.SeedCmd       `cmd:"" help:"Load a YAML fixture into the store"`
		User       commands.UserCmd       `cmd:"" help:"Manage user accounts"`
		Org        commands.OrgCmd        `cmd:"" help:"Manage organizations and members"`
		Project    commands.ProjectCmd    `cmd:"" help:"Manage projects and ownership"`
		Language   commands.LanguageCmd   `cmd:"" help:"Manage project languages"`
		Permission commands.PermissionCmd `cmd:"" help:"Grant, change and revoke permissions"`
		APIKey     commands.APIKeyCmd     `cmd:"" name:"apikey" help:"Manage project API keys"`
		Resolve    commands.ResolveCmd    `cmd:"" help:"Resolve the effective permission of a principal on a project"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Tracing: cli.Tracing,
		Version: version,
		Store:   cli.Store,
		Access:  cli.Access,
	})
	cmd.FatalIfErrorf(err)
}
