package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/onion-topology/internal/cli"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/export"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/session"
	"github.com/Veraticus/onion-topology/internal/storage"
	"github.com/Veraticus/onion-topology/internal/tui"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Manage manual door classifications",
		Long: `Show, edit, import, export and clear the manual door classifications saved
for a file layout. Every command takes an access log; its header row identifies
the layout.`,
	}

	cmd.AddCommand(showClassificationsCmd())
	cmd.AddCommand(editClassificationsCmd())
	cmd.AddCommand(importClassificationsCmd())
	cmd.AddCommand(exportClassificationsCmd())
	cmd.AddCommand(clearClassificationsCmd())
	cmd.AddCommand(classificationHistoryCmd())

	return cmd
}

// withLayout opens storage and decodes the access log named by the command.
func withLayout(cmd *cobra.Command, path string, fn func(ctx context.Context, cfg config.Config, store *storage.SQLiteStorage, table model.RawTable) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	upload, err := readUpload(ctx, cfg, path)
	if err != nil {
		return err
	}
	return fn(ctx, cfg, store, upload.Table)
}

func showClassificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "List the saved classifications for a file layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, _ config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				record, err := store.GetClassificationRecord(ctx, table.Fingerprint())
				if errors.Is(err, common.ErrNotFound) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No saved classifications. Use 'onion classify edit' to create them."))
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to load classifications: %w", err)
				}
				return writeRecordTable(cmd.OutOrStdout(), record)
			})
		},
	}
}

func writeRecordTable(out io.Writer, record model.ClassificationRecord) error {
	doors := make([]string, 0, len(record))
	for id := range record {
		doors = append(doors, id)
	}
	sort.Strings(doors)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOOR\tFLOOR\tSECURITY\tENTRANCE\tSTAIR")
	for _, id := range doors {
		c := record[id]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, orDash(c.Floor), cli.FormatLevel(c.SecurityLevel), optionalBool(c.IsEntranceExit), optionalBool(c.IsStair))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func optionalBool(b *bool) string {
	switch {
	case b == nil:
		return "-"
	case *b:
		return "yes"
	default:
		return "no"
	}
}

func editClassificationsCmd() *cobra.Command {
	var mapFlags []string
	var acceptSuggested bool

	cmd := &cobra.Command{
		Use:   "edit FILE",
		Short: "Classify doors interactively",
		Long: `Open the door classification editor over every door in the access log. Doors
are listed in onion-layer order with their current attributes; saving stores a
complete classification for each of them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, cfg config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				fp := table.Fingerprint()
				resolver := mappingResolver{store: store, in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), flags: mapFlags, acceptSugg: acceptSuggested}
				mapping, _, err := resolver.resolve(ctx, table)
				if err != nil {
					return err
				}

				cache, err := store.LoadClassificationCache(ctx)
				if err != nil {
					return fmt.Errorf("failed to load saved classifications: %w", err)
				}
				// Without a saved record the editor starts from the heuristic entrances.
				current, saved := cache.Lookup(fp)
				sc, _, err := session.Run(session.Request{Table: table, Mapping: mapping, ManualEnabled: saved}, cache, cfg.Processing, nil)
				if err != nil {
					return common.NewUserError("Could not resolve the doors in this file", err)
				}

				record, err := tui.EditClassifications(ctx, sc.Doors, current, tui.WithNumFloors(cfg.Processing.NumFloors))
				if errors.Is(err, tui.ErrEditorCancelled) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No changes saved"))
					return nil
				}
				if err != nil {
					return err
				}

				if err := store.SaveClassificationRecord(ctx, fp, record); err != nil {
					return fmt.Errorf("failed to save classifications: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved classifications for %d doors", len(record))))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&mapFlags, "map", nil, "column mapping as Role=Column (repeatable)")
	cmd.Flags().BoolVarP(&acceptSuggested, "yes", "y", false, "accept the suggested column mapping without asking")
	return cmd
}

func importClassificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE CLASSIFICATIONS.yaml",
		Short: "Replace the saved classifications from a YAML file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, _ config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				fp := table.Fingerprint()
				record, err := readClassificationFile(args[1], fp)
				if err != nil {
					return err
				}
				if err := store.SaveClassificationRecord(ctx, fp, record); err != nil {
					return common.NewUserError("Could not save the imported classifications", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported classifications for %d doors", len(record))))
				return nil
			})
		},
	}
}

func exportClassificationsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Write the saved classifications as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, _ config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				fp := table.Fingerprint()
				record, err := store.GetClassificationRecord(ctx, fp)
				if err != nil {
					if errors.Is(err, common.ErrNotFound) {
						return common.NewUserError("No saved classifications for this file layout", err)
					}
					return fmt.Errorf("failed to load classifications: %w", err)
				}

				file := export.ClassificationFile{Fingerprint: fp, Doors: record}
				if output == "" {
					return export.WriteClassifications(cmd.OutOrStdout(), file)
				}

				f, err := os.Create(output) // #nosec G304 -- the operator names the file
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				if err := export.WriteClassifications(f, file); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to close %s: %w", output, err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Wrote %s", output)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func clearClassificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear FILE",
		Short: "Forget the saved classifications for a file layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, _ config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				err := store.ClearClassificationRecord(ctx, table.Fingerprint())
				if errors.Is(err, common.ErrNotFound) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing to clear"))
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to clear classifications: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Cleared saved classifications"))
				return nil
			})
		},
	}
}

func classificationHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history FILE",
		Short: "Show when classifications for a file layout were saved or cleared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, args[0], func(ctx context.Context, _ config.Config, store *storage.SQLiteStorage, table model.RawTable) error {
				entries, err := store.ClassificationHistory(ctx, table.Fingerprint())
				if err != nil {
					return fmt.Errorf("failed to load history: %w", err)
				}
				if len(entries) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No history for this file layout"))
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "WHEN\tACTION\tDOORS")
				for _, e := range entries {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", e.CreatedAt.Local().Format(time.DateTime), e.Action, e.DoorCount)
				}
				return w.Flush()
			})
		},
	}
}
