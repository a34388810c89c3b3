// Package cli holds the flag values shared by the fluxdiff subcommands.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
)

// Output formats accepted by --format.
const (
	FormatPlain = "plain"
	FormatColor = "color"
	FormatHTML  = "html"
	FormatJSON  = "json"
)

var formats = []string{FormatPlain, FormatColor, FormatHTML, FormatJSON}

// Config holds all the command-line flag values.
type Config struct {
	ConfigFile  string
	LookupDirs  []string
	Extensions  []string
	Format      string
	Nvim        bool
	Write       bool
	NoAnimation bool
}

// BindPersistent registers the flags every subcommand understands.
func BindPersistent(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.ConfigFile, "config", "", "Path to a config file (default ./fluxdiff.yaml if present).")
	fs.StringSliceVarP(&cfg.LookupDirs, "lookup-dir", "l", []string{}, "Directories to resolve relative file paths against.")
	fs.StringSliceVarP(&cfg.Extensions, "extension", "e", []string{}, "Filter by extension (e.g., 'py', 'js').")
}

// BindOutput registers the flags of commands that print diffs.
func BindOutput(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.Format, "format", "f", FormatColor, fmt.Sprintf("Output format: one of %v.", formats))
}

// BindReview registers the flags of the interactive review command.
func BindReview(fs *pflag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.Nvim, "nvim", false, "Stage refined files in Neovim buffers without saving them.")
	fs.BoolVarP(&cfg.Write, "write", "w", false, "Write refined files to disk.")
	fs.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and print the summary only.")
}

// Validate checks flag combinations and normalizes extensions.
func (c *Config) Validate() error {
	if c.Format != "" && !slices.Contains(formats, c.Format) {
		return fmt.Errorf("error: unknown format %q, want one of %v", c.Format, formats)
	}
	if c.Nvim && c.Write {
		return fmt.Errorf("error: --nvim and --write are mutually exclusive")
	}

	for i, ext := range c.Extensions {
		if len(ext) > 0 && ext[0] != '.' {
			c.Extensions[i] = "." + ext
		}
	}
	return nil
}
