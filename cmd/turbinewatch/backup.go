package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/turbinewatch/internal/backup"
	"github.com/HerbHall/turbinewatch/internal/config"
)

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	output := fs.String("output", "", "archive path (default turbinewatch-backup-<timestamp>.tar.gz)")
	_ = fs.Parse(args)

	v, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	archive := *output
	if archive == "" {
		archive = fmt.Sprintf("turbinewatch-backup-%s.tar.gz", time.Now().UTC().Format("20060102-150405"))
	}

	src := backup.Sources{
		Database: v.GetString("database.path"),
		Config:   v.ConfigFileUsed(),
	}
	if p := v.GetString("catalog.path"); p != "" {
		if _, err := os.Stat(p); err == nil {
			src.Catalog = p
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	m, err := backup.Backup(ctx, src, archive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s (%d files)\n", archive, len(m.Files))
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	target := fs.String("target", ".", "directory to restore into")
	force := fs.Bool("force", false, "overwrite existing files")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: turbinewatch restore [-target dir] [-force] <archive>")
		os.Exit(2)
	}

	m, err := backup.Restore(context.Background(), fs.Arg(0), *target, *force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	if m != nil {
		fmt.Printf("restored backup from %s (version %s) into %s\n",
			m.CreatedAt.Format(time.RFC3339), m.Version, *target)
		return
	}
	fmt.Printf("restored backup into %s\n", *target)
}
