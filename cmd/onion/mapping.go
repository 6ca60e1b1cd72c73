package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Veraticus/onion-topology/internal/cli"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/ingest"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/storage"
	"github.com/spf13/cobra"
)

func mappingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manage column mappings",
		Long:  `Show, set and suggest which columns of an access log carry the timestamp, user, door and event type.`,
	}

	cmd.AddCommand(showMappingCmd())
	cmd.AddCommand(setMappingCmd())
	cmd.AddCommand(suggestMappingCmd())

	return cmd
}

func writeMappingTable(out io.Writer, headers []string, mapping model.ColumnMapping) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROLE\tCOLUMN")
	for _, role := range model.RequiredRoles {
		column, ok := mapping.ColumnFor(role)
		if !ok {
			column = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", role, column)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	var unused []string
	for _, h := range headers {
		if _, ok := mapping[h]; !ok {
			unused = append(unused, h)
		}
	}
	if len(unused) > 0 {
		_, _ = fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("Unmapped columns: %v", unused)))
	}
	return nil
}

func showMappingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Show the saved column mapping for a file layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, _ config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				mapping, err := store.GetColumnMapping(ctx, table.Fingerprint())
				if errors.Is(err, common.ErrNotFound) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No saved mapping. Use 'onion mapping set' or run 'onion generate'."))
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to load column mapping: %w", err)
				}
				return writeMappingTable(cmd.OutOrStdout(), table.Headers, mapping)
			})
		},
	}
}

func setMappingCmd() *cobra.Command {
	var mapFlags []string
	var acceptSuggested bool

	cmd := &cobra.Command{
		Use:   "set FILE",
		Short: "Save the column mapping for a file layout",
		Long: `Save which column carries each role. Give every role with --map, accept the
suggestion with --yes, or answer the prompts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, _ config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				fp := table.Fingerprint()
				resolver := mappingResolver{store: store, in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), flags: mapFlags, acceptSugg: acceptSuggested}
				mapping, _, err := resolver.fresh(ctx, table)
				if err != nil {
					return err
				}
				if err := store.SaveColumnMapping(ctx, fp, mapping); err != nil {
					return fmt.Errorf("failed to save column mapping: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Saved column mapping"))
				return writeMappingTable(cmd.OutOrStdout(), table.Headers, mapping)
			})
		},
	}

	cmd.Flags().StringSliceVar(&mapFlags, "map", nil, "column mapping as Role=Column (repeatable)")
	cmd.Flags().BoolVarP(&acceptSuggested, "yes", "y", false, "accept the suggested column mapping without asking")
	return cmd
}

func suggestMappingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest FILE",
		Short: "Suggest a column mapping from the header names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			upload, err := readUpload(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			suggested := ingest.SuggestMapping(upload.Table.Headers)
			if len(suggested) < len(model.RequiredRoles) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("Some roles have no suggestion"))
			}
			return writeMappingTable(cmd.OutOrStdout(), upload.Table.Headers, suggested)
		},
	}
}
