package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

var errInvalidIntake = errors.New("intake is not ready to submit")

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check an intake YAML file against every step's rules",
		Long: `Reads a YAML mapping of field keys (first_name, email, selected_services, ...)
to values, applies them the way the wizard does, and reports every failing field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			rec, err := decodeIntake(data, catalog)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			errs := intake.ValidateAll(rec)
			if !errs.Empty() {
				for _, f := range errs.Fields() {
					fmt.Fprintf(out, "step %d  %-26s %s\n", f.Step(), f.Key(), errs[f])
				}
				return fmt.Errorf("%w: %d field(s) failing", errInvalidIntake, len(errs))
			}
			fmt.Fprintf(out, "ok  %s  total %s\n", rec.FullName(), intake.FormatCents(catalog.Total(rec.Scheduling.SelectedServices)))
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

// decodeIntake applies each key through a FieldStore so the file is coerced
// exactly like wizard input. Keys are applied in sorted order for stable errors.
func decodeIntake(data []byte, catalog *intake.Catalog) (intake.IntakeRecord, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return intake.IntakeRecord{}, fmt.Errorf("parse intake yaml: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	store := intake.NewFieldStore(intake.NewRecord(catalog), catalog, nil)
	for _, key := range keys {
		field, err := intake.ParseField(key)
		if err != nil {
			return intake.IntakeRecord{}, err
		}
		value := raw[key]
		if field.Type() == intake.TypeText && value != nil {
			if _, ok := value.(string); !ok {
				value = fmt.Sprint(value)
			}
		}
		if err := store.Set(field, value); err != nil {
			return intake.IntakeRecord{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	return store.Record(), nil
}
