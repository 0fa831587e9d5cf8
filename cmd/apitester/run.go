package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourorg/apitester/internal/bddgen"
	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/internal/executor"
	"github.com/yourorg/apitester/internal/export"
	"github.com/yourorg/apitester/internal/relay"
	"github.com/yourorg/apitester/internal/report"
	"github.com/yourorg/apitester/pkg/types"
)

// startLocalRelay serves a relay on an ephemeral loopback port until ctx ends
// and returns its base URL.
func startLocalRelay(ctx context.Context, cfg config.RelayConfig, log zerolog.Logger) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: relay.NewServer(cfg, log).Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return "http://" + ln.Addr().String(), nil
}

func selectEndpoints(eps []types.Endpoint, ids []string) ([]types.Endpoint, error) {
	if len(ids) == 0 {
		return eps, nil
	}
	byID := make(map[string]types.Endpoint, len(eps))
	for _, ep := range eps {
		byID[ep.ID] = ep
	}
	var out []types.Endpoint
	for _, id := range ids {
		ep, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("endpoint %s not in collection", id)
		}
		out = append(out, ep)
	}
	return out, nil
}

func newRunCmd(g *globals) *cobra.Command {
	var collection string
	var endpointIDs []string
	var local, writeReport bool
	var noDefault bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a collection's endpoints sequentially through the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			col, err := st.GetCollection(collection)
			if err != nil {
				return err
			}
			eps, err := selectEndpoints(col.Endpoints, endpointIDs)
			if err != nil {
				return err
			}
			if len(eps) == 0 {
				return errors.New("collection has no endpoints")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			relayURL := cfg.Relay.ClientURL()
			if local {
				if relayURL, err = startLocalRelay(ctx, cfg.Relay, log); err != nil {
					return fmt.Errorf("start relay: %w", err)
				}
			}
			client := relay.NewClient(relayURL, time.Duration(cfg.Relay.TimeoutSeconds+30)*time.Second)

			out := cmd.OutOrStdout()
			runner := executor.New(client, log)
			results, runErr := runner.Run(ctx, eps, executor.Options{
				CollectionID:           col.ID,
				ApplyDefaultValidation: cfg.Generator.ApplyDefaultValidation && !noDefault,
			}, func(current, total int) {
				ep := eps[current-1]
				fmt.Fprintf(out, "[%d/%d] %s %s\n", current, total, ep.Method, ep.URL)
			})

			for _, res := range results {
				if err := st.SaveExecution(res); err != nil {
					return err
				}
			}
			fmt.Fprintln(out)
			report.WriteSummary(out, results)

			if writeReport {
				if err := cfg.Validate(); err != nil {
					return err
				}
				path, err := report.RenderMarkdown(col.Name, results, cfg.Output.Dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "report written", path)
			}
			if runErr != nil {
				return fmt.Errorf("run stopped after %d of %d endpoints: %w", len(results), len(eps), runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id")
	cmd.Flags().StringSliceVar(&endpointIDs, "endpoint", nil, "endpoint ids to run (default all)")
	cmd.Flags().BoolVar(&local, "local", false, "start an in-process relay instead of using relay.url")
	cmd.Flags().BoolVar(&writeReport, "report", false, "write a Markdown report to the output dir")
	cmd.Flags().BoolVar(&noDefault, "no-default-validation", false, "do not add the status 200 rule to endpoints without rules")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func newGenerateCmd(g *globals) *cobra.Command {
	var collection, basePackage, endpointName string
	var endpointIDs []string
	var onlySuccessful, asZip bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate Cucumber feature files, step definitions and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateGenerate(); err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			col, err := st.GetCollection(collection)
			if err != nil {
				return err
			}
			latest, err := st.LatestExecutions(col.ID)
			if err != nil {
				return err
			}
			sel := bddgen.Selection{IDs: endpointIDs, OnlySuccessful: cfg.Generator.OnlySuccessful}
			if cmd.Flags().Changed("only-successful") {
				sel.OnlySuccessful = onlySuccessful
			}
			eps, responses := bddgen.FromHistory(col.Endpoints, latest, sel)
			if len(eps) == 0 {
				return errors.New("no endpoints selected for generation")
			}

			pkg, err := bddgen.NormalizePackage(firstNonEmpty(basePackage, cfg.Generator.BasePackage))
			if err != nil {
				return err
			}
			opts := bddgen.Options{
				EndpointName:       firstNonEmpty(endpointName, cfg.Generator.EndpointName),
				BasePackage:        pkg,
				DefaultErrorSchema: col.ErrorSchema,
				Responses:          responses,
			}
			code := bddgen.Generate(eps, opts)
			log.Debug().Int("features", len(code.FeatureFiles)).Int("models", len(code.DataModelStubs)).Msg("code generated")

			out := cmd.OutOrStdout()
			if asZip {
				path := filepath.Join(cfg.Output.Dir, export.ArchiveName(opts.BasePackage))
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := export.WriteZip(f, code, opts.BasePackage); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintln(out, "archive written", path)
				return nil
			}

			written, err := export.WriteDir(cfg.Output.Dir, code, opts.BasePackage)
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Fprintln(out, p)
			}
			fmt.Fprintf(out, "%d endpoints, %d files written to %s\n", len(eps), len(written), cfg.Output.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id")
	cmd.Flags().StringSliceVar(&endpointIDs, "endpoint", nil, "endpoint ids to generate for (default all)")
	cmd.Flags().StringVar(&basePackage, "package", "", "Java base package")
	cmd.Flags().StringVar(&endpointName, "endpoint-name", "", "artifact name for a single unnamed endpoint")
	cmd.Flags().BoolVar(&onlySuccessful, "only-successful", false, "only endpoints whose latest run succeeded")
	cmd.Flags().BoolVar(&asZip, "zip", false, "write a zip archive instead of a directory tree")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func newOpenAPICmd(g *globals) *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "export-openapi",
		Short: "Describe a collection as an OpenAPI 3 document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			col, err := st.GetCollection(collection)
			if err != nil {
				return err
			}
			path, err := report.RenderOpenAPI(col, cfg.Output.Dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "openapi written", path)
			for _, issue := range report.ValidateOpenAPI(path) {
				fmt.Fprintln(out, "  warning:", issue)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
