package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/apitester/internal/importer"
	"github.com/yourorg/apitester/internal/report"
	"github.com/yourorg/apitester/internal/store"
)

func newImportCmd(g *globals) *cobra.Command {
	var file, name string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a Postman collection, OpenAPI/Swagger document or HAR file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.loadConfig()
			if err != nil {
				return err
			}
			res, err := importer.ImportFile(file, importer.Options{
				Filter:       cfg.Filter,
				InferSchemas: cfg.Features.SchemaInference,
			})
			if err != nil {
				return err
			}
			if len(res.Endpoints) == 0 {
				return fmt.Errorf("no endpoints found in %s", file)
			}
			if strings.TrimSpace(name) != "" {
				res.Name = name
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			col, err := store.CreateWithEndpoints(st, res.Name, string(res.Format), res.Endpoints, res.ExternalSchemas)
			if err != nil {
				return err
			}
			log.Debug().Str("collection", col.ID).Int("external_schemas", len(res.ExternalSchemas)).Msg("collection stored")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d endpoints from %s into %s (%s)\n", len(res.Endpoints), res.Format, col.ID, col.Name)
			for _, s := range res.Skipped {
				fmt.Fprintln(out, "  skipped:", s)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document to import")
	cmd.Flags().StringVar(&name, "name", "", "collection name (defaults to the document title)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			cols, err := st.ListCollections()
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no collections")
				return nil
			}
			report.WriteCollections(cmd.OutOrStdout(), cols)
			return nil
		},
	}
}

func newShowCmd(g *globals) *cobra.Command {
	var collection string
	var history int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show collection endpoints and recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
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
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  (source: %s, updated %s)\n\n", col.ID, col.Name, col.Source, col.UpdatedAt.Format("2006-01-02 15:04"))
			report.WriteEndpoints(out, col.Endpoints)

			if history <= 0 {
				return nil
			}
			results, err := st.ListExecutions(col.ID, history)
			if err != nil {
				return err
			}
			if len(results) > 0 {
				fmt.Fprintln(out)
				report.WriteSummary(out, results)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id")
	cmd.Flags().IntVar(&history, "history", 0, "number of recent executions to show")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func newDeleteCmd(g *globals) *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a collection with its endpoints and executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteCollection(collection); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", collection)
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection id")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}
