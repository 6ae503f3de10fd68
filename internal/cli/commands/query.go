package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metagraph-dev/metagraph/internal/cli/ui"
	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

type aspectRow struct {
	Name       string `json:"name"`
	RecordName string `json:"recordName"`
	Namespace  string `json:"namespace,omitempty"`
	Fields     int    `json:"fields"`
	Doc        string `json:"doc,omitempty"`
}

func newAspectsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "aspects",
		Short: "List aspect schemas",
		Example: `  metagraph aspects
  metagraph aspects --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				return err
			}

			rows := []aspectRow{}
			for asp := range snap.ListAspects() {
				rows = append(rows, aspectRow{
					Name:       asp.Name,
					RecordName: asp.RecordName,
					Namespace:  asp.Namespace,
					Fields:     len(asp.Fields),
					Doc:        asp.Doc,
				})
			}

			return a.render(cmd.OutOrStdout(), rows, func(w io.Writer) {
				headers := []string{"NAME", "RECORD", "NAMESPACE", "FIELDS"}
				if a.verbose {
					headers = append(headers, "DOC")
				}
				t := ui.NewTable(w, a.noColor, headers...)
				for _, r := range rows {
					t.AddRow(r.Name, r.RecordName, r.Namespace, strconv.Itoa(r.Fields), firstLine(r.Doc))
				}
				t.Render()
			})
		},
	}
}

func newAspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "aspect <name>",
		Short: "Show one aspect schema and its fields",
		Long: `Show one aspect schema and its fields.

With --format json the aspect is printed as a schema source document, the
same format the loader reads.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames(a, aspectNames),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			asp, err := snap.GetAspect(args[0])
			if err != nil {
				return a.notFound(cmd, err, aspectNames(snap))
			}

			w := cmd.OutOrStdout()
			if a.format == "json" {
				doc, err := avro.EncodeAspect(asp)
				if err != nil {
					return err
				}
				var out bytes.Buffer
				if err := json.Indent(&out, doc, "", "  "); err != nil {
					return err
				}
				out.WriteByte('\n')
				_, err = out.WriteTo(w)
				return err
			}

			kv := ui.NewKeyValueTable(w, a.noColor)
			kv.AddRow("Aspect", asp.Name)
			kv.AddRow("Record", asp.FullName())
			kv.AddRow("Doc", firstLine(asp.Doc))
			kv.Render()
			fmt.Fprintln(w)

			t := ui.NewTable(w, a.noColor, "FIELD", "TYPE", "DEFAULT", "ANNOTATIONS")
			err = schema.Walk(asp, snap.Resolve, func(path string, f *schema.Field) error {
				t.AddRow(path, f.Type.String(), string(f.Default), annotationSummary(f))
				return nil
			})
			if err != nil {
				return err
			}
			t.Render()
			return nil
		},
	}
}

func newEntitiesCommand(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List entity types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				return err
			}

			entities := []*schema.EntityDefinition{}
			for e := range snap.ListEntities() {
				if category == "" || strings.EqualFold(e.Category, category) {
					entities = append(entities, e)
				}
			}

			return a.render(cmd.OutOrStdout(), entities, func(w io.Writer) {
				t := ui.NewTable(w, a.noColor, "NAME", "CATEGORY", "KEY ASPECT", "ASPECTS")
				for _, e := range entities {
					t.AddRow(e.Name, e.Category, e.KeyAspect, strconv.Itoa(len(e.Aspects)))
				}
				t.Render()
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only entities in this category")
	return cmd
}

func newEntityCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "entity <name>",
		Short: "Show one entity type with its aspects and relationships",
		Long: `Show one entity type with its aspects and relationships.

Entity names are matched case-insensitively.`,
		Example:           `  metagraph entity mlModelGroup`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames(a, entityNames),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			e, err := snap.GetEntity(args[0])
			if err != nil {
				return a.notFound(cmd, err, entityNames(snap))
			}
			out, err := snap.ComputeOutgoing(e.Name)
			if err != nil {
				return err
			}
			in, err := snap.ComputeIncoming(e.Name)
			if err != nil {
				return err
			}

			view := struct {
				*schema.EntityDefinition
				Outgoing []registry.Relationship `json:"outgoing"`
				Incoming []registry.Relationship `json:"incoming"`
			}{e, out, in}

			return a.render(cmd.OutOrStdout(), view, func(w io.Writer) {
				kv := ui.NewKeyValueTable(w, a.noColor)
				kv.AddRow("Entity", e.Name)
				kv.AddRow("Category", e.Category)
				kv.AddRow("Key aspect", e.KeyAspect)
				kv.AddRow("Aspects", strings.Join(e.Aspects, ", "))
				kv.AddRow("Doc", firstLine(e.Doc))
				kv.Render()

				fmt.Fprintln(w)
				ui.Header(w, "Outgoing", a.noColor)
				relationshipTable(w, a.noColor, out, registry.Outgoing)
				fmt.Fprintln(w)
				ui.Header(w, "Incoming", a.noColor)
				relationshipTable(w, a.noColor, in, registry.Incoming)
			})
		},
	}
}

func newRelationshipsCommand(a *app) *cobra.Command {
	var direction string
	var names []string
	cmd := &cobra.Command{
		Use:   "relationships [entity]",
		Short: "Show relationships of an entity type, or every relationship type",
		Example: `  # Relationships declared by mlModelGroup's aspects
  metagraph relationships mlModelGroup

  # Relationships pointing at mlModelGroup
  metagraph relationships mlModelGroup --direction incoming

  # Every relationship type in the registry
  metagraph relationships`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeNames(a, entityNames),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := registry.ParseDirection(direction)
			if err != nil {
				return err
			}
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 0 {
				types, err := snap.RelationshipTypes()
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), types, func(w io.Writer) {
					t := ui.NewTable(w, a.noColor, "NAME", "SOURCES", "TARGETS", "LINEAGE")
					for _, rt := range types {
						t.AddRow(rt.Name, strings.Join(rt.Sources, ", "), strings.Join(rt.Targets, ", "), yesNo(rt.IsLineage))
					}
					t.Render()
				})
			}

			rels, err := snap.Relationships(args[0], dir)
			if err != nil {
				return a.notFound(cmd, err, entityNames(snap))
			}
			if len(names) > 0 {
				filtered := []registry.Relationship{}
				for _, r := range rels {
					for _, n := range names {
						if r.Name == n {
							filtered = append(filtered, r)
						}
					}
				}
				rels = filtered
			}

			return a.render(cmd.OutOrStdout(), rels, func(w io.Writer) {
				relationshipTable(w, a.noColor, rels, dir)
			})
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "outgoing", "outgoing or incoming")
	cmd.Flags().StringSliceVar(&names, "name", nil, "Only relationships with these names")
	return cmd
}

func newSearchableCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "searchable <entity>",
		Short:             "List the search index fields of an entity type",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames(a, entityNames),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			fields, err := snap.SearchableFields(args[0])
			if err != nil {
				return a.notFound(cmd, err, entityNames(snap))
			}

			return a.render(cmd.OutOrStdout(), fields, func(w io.Writer) {
				t := ui.NewTable(w, a.noColor, "INDEX NAME", "FIELD", "TYPE", "BOOST", "FILTER", "AUTOCOMPLETE")
				for _, f := range fields {
					t.AddRow(f.IndexName, f.FieldPath, f.FieldType,
						strconv.FormatFloat(f.BoostScore, 'g', -1, 64),
						yesNo(f.AddToFilters), yesNo(f.EnableAutocomplete))
				}
				t.Render()
			})
		},
	}
}

func newGraphCommand(a *app) *cobra.Command {
	var depth int
	var reverse bool
	var names []string
	cmd := &cobra.Command{
		Use:   "graph <entity>",
		Short: "Walk the relationship graph from an entity type",
		Example: `  # Everything mlModel reaches within two hops
  metagraph graph mlModel --depth 2

  # Who points at corpuser, transitively
  metagraph graph corpuser --reverse --depth 0`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames(a, entityNames),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 0 {
				return fmt.Errorf("--depth must not be negative")
			}
			snap, err := a.loadSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			g, err := snap.Traverse(args[0], registry.GraphOptions{Depth: depth, Reverse: reverse, Names: names})
			if err != nil {
				return a.notFound(cmd, err, entityNames(snap))
			}

			return a.render(cmd.OutOrStdout(), g, func(w io.Writer) {
				ui.Header(w, fmt.Sprintf("%s (%d entity types)", g.Root, len(g.Nodes)), a.noColor)
				dir := registry.Outgoing
				if reverse {
					dir = registry.Incoming
				}
				relationshipTable(w, a.noColor, g.Edges, dir)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 1, "Maximum hops to follow (0 = unlimited)")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Follow incoming relationships")
	cmd.Flags().StringSliceVar(&names, "name", nil, "Only follow relationships with these names")
	return cmd
}

func relationshipTable(w io.Writer, noColor bool, rels []registry.Relationship, dir registry.Direction) {
	other := "TARGET"
	if dir == registry.Incoming {
		other = "SOURCE"
	}
	t := ui.NewTable(w, noColor, "NAME", other, "ASPECT", "FIELD PATH")
	for _, r := range rels {
		peer := r.Target
		if dir == registry.Incoming {
			peer = r.Source
		}
		name := r.Name
		if r.IsLineage {
			name += " (lineage)"
		}
		t.AddRow(name, peer, r.Aspect, r.FieldPath)
	}
	t.Render()
}

func annotationSummary(f *schema.Field) string {
	var parts []string
	for _, r := range f.Relations {
		parts = append(parts, fmt.Sprintf("@Relationship(%s -> %s)", r.Name, strings.Join(r.EntityTypes, "|")))
	}
	if len(f.Searchable) > 0 {
		parts = append(parts, "@Searchable")
	}
	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
