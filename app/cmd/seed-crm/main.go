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

var sampleLeads = []map[string]interface{}{
	{
		"name":             "Enterprise Deal - Acme Corp",
		"contact_name":     "Alice Johnson",
		"email_from":       "alice@acme.com",
		"phone":            "+1-555-0001",
		"expected_revenue": 50000,
		"description":      "Interested in the Enterprise plan. Budget approved for Q3.",
		"type":             "lead",
	},
	{
		"name":             "SMB Opportunity - BrightTech",
		"contact_name":     "Bob Williams",
		"email_from":       "bob@brighttech.io",
		"phone":            "+1-555-0002",
		"expected_revenue": 12000,
		"description":      "Looking for CRM integration with existing ERP.",
		"type":             "lead",
	},
	{
		"name":             "Startup Inquiry - NovaSoft",
		"contact_name":     "Carol Davis",
		"email_from":       "carol@novasoft.dev",
		"phone":            "+1-555-0003",
		"expected_revenue": 5000,
		"description":      "Early stage startup, limited budget but high growth potential.",
		"type":             "lead",
	},
	{
		"name":             "Renewal - RetailPlus",
		"contact_name":     "David Martinez",
		"email_from":       "david@retailplus.com",
		"phone":            "+1-555-0004",
		"expected_revenue": 25000,
		"description":      "Contract renewal coming up. Interested in upgrading to Pro.",
		"type":             "opportunity",
	},
	{
		"name":             "Upsell - HealthCo",
		"contact_name":     "Emma Wilson",
		"email_from":       "emma@healthco.org",
		"phone":            "+1-555-0005",
		"expected_revenue": 18000,
		"description":      "Current customer. Interested in adding 10 more user licenses.",
		"type":             "opportunity",
	},
}

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(2)
	}
	cfg := cfgManager.Get()
	secrets := config.LoadSecrets()
	if secrets.OdooAPIKey == "" {
		fmt.Fprintln(os.Stderr, "seed failed: ODOO_API_KEY is not set")
		os.Exit(2)
	}

	client := odoo.NewClient(cfg.Odoo.URL, cfg.Odoo.Database, cfg.Odoo.User, secrets.OdooAPIKey,
		time.Duration(cfg.Odoo.TimeoutSec)*time.Second)

	ctx := context.Background()
	fmt.Println("Seeding test data into Odoo...")
	failures := 0
	for _, values := range sampleLeads {
		leadID, err := client.CreateLead(ctx, values)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR creating '%s': %v\n", values["name"], err)
			failures++
			continue
		}
		fmt.Printf("  Created lead id=%d: %s\n", leadID, values["name"])
	}
	if failures > 0 {
		os.Exit(1)
	}
	fmt.Printf("Done. Created %d sample leads.\n", len(sampleLeads))
}
