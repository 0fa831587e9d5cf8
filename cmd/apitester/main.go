package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/internal/filter"
	"github.com/yourorg/apitester/internal/logger"
	"github.com/yourorg/apitester/internal/store"
)

const defaultConfigContent = `relay:
  host: "0.0.0.0"
  port: 3001
  url: ""
  environment: "development"
  blocked_hosts: []
  rate_limit: 100
  rate_window_minutes: 15
  timeout_seconds: 60
  max_redirects: 5
  insecure_skip_verify: false

server:
  host: "127.0.0.1"
  port: 3000
  cors_origin: ""

generator:
  base_package: "com.example.api"
  endpoint_name: ""
  only_successful: false
  apply_default_validation: true

features:
  bdd_generation: true
  schema_inference: true
  manual_schema: true
  openapi_schema: true
  value_selector: true

output:
  dir: "./output"

filter:
  ignore_extensions:
    - .js
    - .css
    - .png
    - .jpg
    - .gif
    - .svg
    - .woff
    - .woff2
    - .ico
    - .map
  ignore_content_types:
    - text/html
    - text/css
    - image/*
    - font/*
    - application/javascript
  ignore_paths:
    - /static/
    - /assets/
    - /favicon

sanitize:
  headers:
    - Authorization
    - Cookie
    - Set-Cookie
    - X-Api-Key
    - X-Auth-Token
  body_fields:
    - password
    - secret
    - token
    - api_key
    - access_token
    - refresh_token
    - credential
  replacement: "***REDACTED***"

log:
  level: "info"
  pretty: true
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	cfgPath string
	verbose bool
	debug   bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "apitester",
		Short:         "API testing CLI: import, run, validate and generate BDD tests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "human-readable log output")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug output")

	root.AddCommand(newInitCmd(g))
	root.AddCommand(newServeCmd(g))
	root.AddCommand(newRelayCmd(g))
	root.AddCommand(newHealthCmd(g))
	root.AddCommand(newImportCmd(g))
	root.AddCommand(newListCmd(g))
	root.AddCommand(newShowCmd(g))
	root.AddCommand(newDeleteCmd(g))
	root.AddCommand(newRunCmd(g))
	root.AddCommand(newGenerateCmd(g))
	root.AddCommand(newOpenAPICmd(g))

	return root
}

// loadConfig reads the config and builds the logger the flags ask for.
func (g *globals) loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(g.cfgPath)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	if g.debug {
		cfg.Log.Level = "debug"
	}
	if g.verbose {
		cfg.Log.Pretty = true
	}
	return cfg, logger.New(cfg.Log), nil
}

// openStore opens the configured database with execution redaction wired in.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(dbPath, filter.NewRedactor(cfg.Sanitize))
}

func newInitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.apitester directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := g.cfgPath
			if cfgFile == "" {
				baseDir, err := config.BaseDir()
				if err != nil {
					return err
				}
				cfgFile = filepath.Join(baseDir, "config.yaml")
			}
			if err := os.MkdirAll(filepath.Dir(cfgFile), 0o755); err != nil {
				return err
			}

			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			dbPath, _ := cfg.StorePath()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			return nil
		},
	}
}
