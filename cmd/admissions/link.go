package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/admitly/admissions/internal/metadata"
	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/formsync"
	"github.com/admitly/admissions/pkg/options"
	"github.com/admitly/admissions/pkg/urlparam"
)

func linkCmd() *cobra.Command {
	var (
		formName     string
		base         string
		sets         []string
		metadataPath string
		formsDir     string
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Build a prefilled form link",
		Long: `Build a link that opens a form with some fields prefilled.

Select values may be given by value or by display label. Lists are
comma separated; an empty list is written as "none".

Examples:
  admissions link --form admission --set utmSource=facebook
  admissions link --form event --base https://tuyensinh.example.edu.vn/su-kien \
    --set event=open-day --set "role=Phụ huynh"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, catalog, err := formAndCatalog(formName, formsDir, metadataPath)
			if err != nil {
				return err
			}
			link, err := buildLink(schema, catalog, base, sets)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formName, "form", "f", "", "Form name")
	cmd.Flags().StringVar(&base, "base", "", "Page URL the query is appended to")
	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, "field=value to prefill (repeatable)")
	cmd.Flags().StringVar(&metadataPath, "metadata", "", "Option catalog JSON (default: bundled defaults)")
	cmd.Flags().StringVar(&formsDir, "forms", "", "Directory of extra form schemas")
	cmd.MarkFlagRequired("form")

	return cmd
}

// buildLink resolves each field=value through the same decoding a page
// load uses, so the link hydrates to exactly what is printed.
func buildLink(schema *form.Schema, catalog options.Catalog, base string, sets []string) (string, error) {
	raw := url.Values{}
	var names []string
	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return "", fmt.Errorf("--set %q: want field=value", kv)
		}
		if _, ok := schema.Field(name); !ok {
			return "", fmt.Errorf("form %s has no field %q", schema.Name, name)
		}
		if value == "" {
			value = urlparam.EmptySentinel
		}
		raw.Set(name, value)
		names = append(names, name)
	}

	query := raw.Encode()
	full := formsync.Hydrate(schema, query, catalog)
	allowed := formsync.AllowedSets(schema, full, catalog)
	params := urlparam.ParseQuery(query)
	partial := make(form.State, len(names))
	for _, name := range names {
		f, _ := schema.Field(name)
		if _, outcome := urlparam.DecodeField(params, f, allowed[name]); outcome == urlparam.Fallback {
			warn("%s=%q is not an option; the link uses %s", name, raw.Get(name), full[name])
		}
		partial[name] = full[name]
	}

	query = urlparam.Encode(partial)
	if base == "" {
		return "?" + query, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("--base: %w", err)
	}
	u.RawQuery = query
	return u.String(), nil
}

func decodeCmd() *cobra.Command {
	var (
		formName     string
		metadataPath string
		formsDir     string
	)

	cmd := &cobra.Command{
		Use:   "decode <url-or-query>",
		Short: "Show the state a form link hydrates to",
		Long: `Decode a form link and print the hydrated state as JSON.

Examples:
  admissions decode --form admission 'https://tuyensinh.example.edu.vn/dang-ky?gender=Nam'
  admissions decode --form admission 'aspirations=none&confirmAccuracy=true'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, catalog, err := formAndCatalog(formName, formsDir, metadataPath)
			if err != nil {
				return err
			}
			query := args[0]
			if u, err := url.Parse(query); err == nil && (u.Scheme != "" || strings.Contains(query, "?")) {
				query = u.RawQuery
			}

			st := formsync.Hydrate(schema, query, catalog)
			out := struct {
				Form  string     `json:"form"`
				State form.State `json:"state"`
				Query string     `json:"query"`
			}{schema.Name, st, urlparam.Encode(st)}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&formName, "form", "f", "", "Form name")
	cmd.Flags().StringVar(&metadataPath, "metadata", "", "Option catalog JSON (default: bundled defaults)")
	cmd.Flags().StringVar(&formsDir, "forms", "", "Directory of extra form schemas")
	cmd.MarkFlagRequired("form")

	return cmd
}

func formAndCatalog(name, formsDir, metadataPath string) (*form.Schema, options.Catalog, error) {
	forms, err := loadForms(formsDir)
	if err != nil {
		return nil, nil, err
	}
	schema, ok := forms.Get(name)
	if !ok {
		names := forms.Names()
		sort.Strings(names)
		return nil, nil, fmt.Errorf("unknown form %q (have %s)", name, strings.Join(names, ", "))
	}

	if metadataPath == "" {
		return schema, metadata.Defaults(), nil
	}
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := options.ParseCatalog(data)
	if err != nil {
		return nil, nil, err
	}
	return schema, options.Merge(metadata.Defaults(), catalog), nil
}
