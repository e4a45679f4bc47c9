package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	appconfig "github.com/wolfman30/mealprep-intake/internal/config"
	"github.com/wolfman30/mealprep-intake/internal/intake"
)

func loadCatalog(cmd *cobra.Command) (*intake.Catalog, error) {
	path, _ := cmd.Flags().GetString("catalog")
	return appconfig.LoadCatalog(path)
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the services and prices customers can select",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			asYAML, _ := cmd.Flags().GetBool("yaml")
			out := cmd.OutOrStdout()
			if asYAML {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string][]intake.LineItem{"services": catalog.Items()})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDURATION\tPRICE\t")
			for _, item := range catalog.Items() {
				name := item.Name
				if item.Required {
					name += " (required)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", item.ID, name, item.Duration, intake.FormatCents(item.UnitPriceCents))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("yaml", false, "Print the catalog in the CATALOG_PATH file format")
	return cmd
}

func quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote [service-id...]",
		Short: "Price a selection; the required service is always included",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			selected := []string{catalog.Required().ID}
			for _, id := range args {
				id = strings.TrimSpace(id)
				if _, ok := catalog.Lookup(id); !ok {
					return fmt.Errorf("unknown service %q", id)
				}
				if id != selected[0] {
					selected = append(selected, id)
				}
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, line := range catalog.Lines(selected) {
				fmt.Fprintf(tw, "%s\t%s\t\n", line.Name, intake.FormatCents(line.UnitPriceCents))
			}
			fmt.Fprintf(tw, "Total\t%s\t\n", intake.FormatCents(catalog.Total(selected)))
			return tw.Flush()
		},
	}
	return cmd
}
