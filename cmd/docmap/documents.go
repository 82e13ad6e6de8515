package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/docmap/internal/server"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/store"
)

func newGetCmd(a *app) *cobra.Command {
	var canonical bool

	cmd := &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print one document as Extended JSON",
		Long: `Print one document as Extended JSON.

The id is read as an ObjectID when it is 24 hex digits, as a UUID in canonical form,
as an integer, or otherwise as a string.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDatastore(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer ds.Close()

			doc, err := ds.FetchDocument(cmd.Context(), args[0], server.ParseID(args[1]))
			if err != nil {
				return fmt.Errorf("%s/%s: %w", args[0], args[1], err)
			}
			data, err := document.MarshalExtJSON(doc, canonical)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&canonical, "canonical", false, "write canonical instead of relaxed Extended JSON")
	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	var discriminator string

	cmd := &cobra.Command{
		Use:   "put <collection> <file.json>",
		Short: "Store an Extended JSON document",
		Long: `Store an Extended JSON document, replacing any document with the same _id. Use - to read from stdin.

Documents nested deeper than decode.max_depth are rejected. --discriminator writes the
type discriminator under mapping.discriminator_key.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			input, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			doc, err := document.UnmarshalExtJSON(input)
			if err != nil {
				return err
			}

			ds, err := openDatastore(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer ds.Close()

			if s, ok := ds.Store().(*store.SQL); ok {
				if err := s.EnsureCollection(cmd.Context(), collection); err != nil {
					return err
				}
			}
			if discriminator != "" {
				ds.Discriminate(doc, discriminator)
			}
			if err := ds.PutDocument(cmd.Context(), collection, doc); err != nil {
				return err
			}

			id, _ := doc.Lookup(store.IDField)
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ stored %s in %s\n", id, collection)
			return nil
		},
	}
	cmd.Flags().StringVar(&discriminator, "discriminator", "", "type discriminator to store with the document")
	return cmd
}
