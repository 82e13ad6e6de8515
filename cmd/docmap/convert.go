package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/docmap/pkg/document"
)

func newConvertCmd() *cobra.Command {
	var (
		to        string
		out       string
		canonical bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a document between Extended JSON and BSON",
		Long: `Convert a document between Extended JSON and BSON.

With --to bson the input is Extended JSON; with --to json the input is BSON.
Use - to read from stdin.`,
		Args: cobra.ExactArgs(1),
		// Conversion needs no config
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			var output []byte
			switch to {
			case "bson":
				doc, err := document.UnmarshalExtJSON(input)
				if err != nil {
					return err
				}
				output, err = document.Marshal(doc)
				if err != nil {
					return err
				}
			case "json":
				doc, err := document.Unmarshal(input)
				if err != nil {
					return err
				}
				output, err = document.MarshalExtJSON(doc, canonical)
				if err != nil {
					return err
				}
				output = append(output, '\n')
			default:
				return fmt.Errorf("--to must be json or bson, got %q", to)
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(output)
				return err
			}
			return os.WriteFile(out, output, 0644)
		},
	}

	cmd.Flags().StringVar(&to, "to", "json", "output format: json or bson")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&canonical, "canonical", false, "write canonical instead of relaxed Extended JSON")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
