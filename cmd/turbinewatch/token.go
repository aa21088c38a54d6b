package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/turbinewatch/internal/auth"
	"github.com/HerbHall/turbinewatch/internal/config"
)

// runToken issues an access token signed with the configured secret:
//
//	turbinewatch token -config turbinewatch.yaml -subject dcs-gateway -role collector
func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	subject := fs.String("subject", "", "token subject (collector or user name)")
	role := fs.String("role", string(auth.RoleViewer), "role: collector, viewer or admin")
	ttl := fs.Duration("ttl", -1, "token lifetime (0 = no expiry, default auth.token_ttl)")
	_ = fs.Parse(args)

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "token: -subject is required")
		os.Exit(2)
	}
	r, err := auth.ParseRole(*role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(2)
	}

	v, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	secret := v.GetString("auth.jwt_secret")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "token: auth.jwt_secret is not set")
		os.Exit(1)
	}
	lifetime := v.GetDuration("auth.token_ttl")
	if *ttl >= 0 {
		lifetime = *ttl
	}

	tokens, err := auth.NewTokenService([]byte(secret), lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	tok, err := tokens.Issue(*subject, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	if lifetime > 0 {
		fmt.Fprintf(os.Stderr, "token for %s (%s) expires %s\n", *subject, r, time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	}
	fmt.Println(tok)
}
