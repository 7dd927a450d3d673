// Package scaffold writes a starter cardlink.yml.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"text/template"

	"github.com/dyluth/cardlink/internal/config"
	"github.com/dyluth/cardlink/pkg/link"
)

//go:embed templates/*
var templatesFS embed.FS

// Options fills the template.
type Options struct {
	Pairing  string
	RedisURL string
}

// Initialize writes a cardlink.yml to path.
// If force is true an existing file is replaced.
func Initialize(path string, opts Options, force bool) error {
	if opts.Pairing == "" {
		opts.Pairing = "default"
	}
	if opts.RedisURL == "" {
		opts.RedisURL = "redis://localhost:6379/0"
	}
	if err := link.ValidatePairingName(opts.Pairing); err != nil {
		return err
	}

	if !force {
		if err := CheckExisting(path); err != nil {
			return err
		}
	}

	content, err := render(opts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Validate created file
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("created %s is invalid: %w", path, err)
	}
	return nil
}

func render(opts Options) ([]byte, error) {
	raw, err := templatesFS.ReadFile("templates/cardlink.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read cardlink.yml template: %w", err)
	}
	tmpl, err := template.New("cardlink.yml").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse cardlink.yml template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return nil, fmt.Errorf("failed to render cardlink.yml: %w", err)
	}
	return buf.Bytes(), nil
}

// PrintSuccess prints the success message with next steps
func PrintSuccess(path string) {
	fmt.Println("\n✅ Successfully initialized cardlink!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Copy the file to the other device (same pairing, same Redis)")
	fmt.Println("  2. Run 'watch serve' on the watch")
	fmt.Println("  3. Run 'phone submit --key KEY --token TOKEN' on the phone")
}
