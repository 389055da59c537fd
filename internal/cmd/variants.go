package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/variant"
)

var (
	variantsListJSON bool
	variantsShowJSON bool
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Inspect the slide variant catalog",
}

var variantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available variants",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := catalogLoader(cmd.Context())
		if err != nil {
			return err
		}

		ids, err := loader.List()
		if err != nil {
			return err
		}

		if variantsListJSON {
			specs := make([]*variant.Spec, 0, len(ids))
			for _, id := range ids {
				spec, err := loader.Load(id)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			payload, err := json.MarshalIndent(specs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		if len(ids) == 0 {
			fmt.Println("No variants found.")
			return nil
		}

		fmt.Println("Variants:")
		for _, id := range ids {
			spec, err := loader.Load(id)
			if err != nil {
				fmt.Printf("- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("- %s%s\n", id, variantSummary(spec))
		}
		return nil
	},
}

var variantsShowCmd = &cobra.Command{
	Use:   "show <variant_id>",
	Short: "Show a variant's elements and constraints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.TrimSpace(args[0])
		if id == "" {
			return errors.New("variant id is required")
		}

		loader, err := catalogLoader(cmd.Context())
		if err != nil {
			return err
		}

		spec, err := loader.Load(id)
		if err != nil {
			return err
		}

		if variantsShowJSON {
			payload, err := json.MarshalIndent(spec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		printVariant(spec)
		return nil
	},
}

func catalogLoader(ctx context.Context) (*variant.Loader, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newVariantLoader(cfg), nil
}

func variantSummary(spec *variant.Spec) string {
	parts := make([]string, 0, 3)
	plural := "s"
	if len(spec.Elements) == 1 {
		plural = ""
	}
	parts = append(parts, fmt.Sprintf("%d element%s", len(spec.Elements), plural))
	if spec.Hero {
		parts = append(parts, "hero")
	}
	if spec.HasBackground() {
		parts = append(parts, "background")
	}

	summary := ": " + strings.Join(parts, ", ")
	if spec.Title != "" {
		summary += fmt.Sprintf(" (%s)", spec.Title)
	}
	return summary
}

func printVariant(spec *variant.Spec) {
	fmt.Printf("Variant: %s\n", spec.VariantID)
	if spec.Title != "" {
		fmt.Printf("Title: %s\n", spec.Title)
	}
	if spec.Hero {
		fmt.Println("Hero: yes")
	}
	fmt.Printf("Template: %s\n", spec.TemplatePath)
	if spec.HasBackground() {
		bg := spec.Background
		line := "Background: enabled"
		if bg.AspectRatio != "" {
			line += fmt.Sprintf(", aspect %s", bg.AspectRatio)
		}
		if bg.Style != "" {
			line += fmt.Sprintf(", style %q", bg.Style)
		}
		fmt.Println(line)
	}

	fmt.Println("Elements:")
	for _, el := range spec.Elements {
		fmt.Printf("- %s (%s)\n", el.ElementID, el.ElementType)
		for _, field := range el.RequiredFields {
			if c, ok := el.Constraint(field); ok {
				fmt.Printf("    %s: %d-%d chars (baseline %d)\n", field, c.Min, c.Max, c.Baseline)
				continue
			}
			fmt.Printf("    %s\n", field)
		}
	}
}

func init() {
	rootCmd.AddCommand(variantsCmd)
	variantsCmd.AddCommand(variantsListCmd)
	variantsCmd.AddCommand(variantsShowCmd)

	variantsListCmd.Flags().BoolVar(&variantsListJSON, "json", false, "Print full variant specs as JSON")
	variantsShowCmd.Flags().BoolVar(&variantsShowJSON, "json", false, "Print the variant spec as JSON")
}
