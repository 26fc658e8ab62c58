package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	config "crmpilot/app/configs"
	"crmpilot/app/core/odoo"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "odoo check failed: %v\n", err)
		os.Exit(2)
	}
	cfg := cfgManager.Get()
	secrets := config.LoadSecrets()
	if secrets.OdooAPIKey == "" {
		fmt.Fprintln(os.Stderr, "odoo check failed: ODOO_API_KEY is not set")
		os.Exit(2)
	}

	client := odoo.NewClient(cfg.Odoo.URL, cfg.Odoo.Database, cfg.Odoo.User, secrets.OdooAPIKey,
		time.Duration(cfg.Odoo.TimeoutSec)*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	version, err := client.Version(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "odoo check failed: version probe: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server version: %s\n", version.Get("server_version").String())

	uid, err := client.Authenticate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "odoo check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Authenticated as %s (uid=%d)\n", cfg.Odoo.User, uid)

	leads, err := client.SearchLeads(ctx, nil, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "odoo check failed: lead query: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("CRM reachable: %d lead(s) visible.\n", len(leads))
}
