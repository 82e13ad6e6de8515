package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/docmap/pkg/criteria"
	"github.com/conduit-lang/docmap/pkg/docmap"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/store"
)

func newFilterCmd(a *app) *cobra.Command {
	var (
		or        bool
		canonical bool
	)

	cmd := &cobra.Command{
		Use:   "filter <path> <operator> <value> [<path> <operator> <value>...]",
		Short: "Render a query document from field predicates",
		Long: `Render a query document from field predicates.

Each predicate is a dotted path, an operator (eq, ne, gt, gte, lt, lte, in, nin, all,
exists, size, regex, mod, elemMatch, type) and a value in relaxed Extended JSON. A value
that is not valid Extended JSON is taken as a string. Predicates are joined with AND
unless --or is given.

With criteria.strict_types an operator given a value it cannot take is an error;
otherwise it is logged as a warning and rendered anyway.`,
		Example: `  docmap filter age gte 21 tags in '["go","db"]'
  docmap filter --or name eq ada name eq grace`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%3 != 0 {
				return fmt.Errorf("expected <path> <operator> <value> triples, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Rendering never reaches the configured backend.
			ds := docmap.New(store.NewMemory(), a.cfg.DatastoreOptions(a.logger)...)

			q := ds.Validator().Documents()
			predicates := make([]criteria.Criteria, 0, len(args)/3)
			for i := 0; i < len(args); i += 3 {
				op, err := criteria.ParseOperator(args[i+1])
				if err != nil {
					return err
				}
				value, err := parseFilterValue(args[i+2])
				if err != nil {
					return err
				}
				predicates = append(predicates, q.Field(args[i]).Operator(op, value))
			}
			if or {
				q.Filter(q.Or(predicates...))
			} else {
				q.Filter(predicates...)
			}

			doc, err := q.Document()
			if err != nil {
				return err
			}
			data, err := document.MarshalExtJSON(doc, canonical)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&or, "or", false, "join the predicates with OR")
	cmd.Flags().BoolVar(&canonical, "canonical", false, "write canonical instead of relaxed Extended JSON")
	return cmd
}

// parseFilterValue reads raw as a relaxed Extended JSON value and returns its Go form:
// documents become maps, arrays slices and scalars their payload
func parseFilterValue(raw string) (interface{}, error) {
	doc, err := document.UnmarshalExtJSON([]byte(`{"v":` + raw + `}`))
	if err != nil {
		return raw, nil
	}
	v, ok := doc.Lookup("v")
	if !ok {
		return nil, fmt.Errorf("cannot read value %q", raw)
	}
	return natural(v), nil
}

func natural(v document.Value) interface{} {
	if d, ok := v.DocumentOK(); ok {
		m := make(map[string]interface{}, d.Len())
		for _, el := range d.Elements() {
			m[el.Key] = natural(el.Value)
		}
		return m
	}
	if arr, ok := v.ArrayOK(); ok {
		out := make([]interface{}, arr.Len())
		for i, el := range arr.Values() {
			out[i] = natural(el)
		}
		return out
	}
	return v.Interface()
}
