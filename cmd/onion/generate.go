package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Veraticus/onion-topology/internal/cli"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/export"
	"github.com/Veraticus/onion-topology/internal/metrics"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/session"
	"github.com/Veraticus/onion-topology/internal/storage"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	classificationsFile string
	output              string
	elements            string
	format              string
	metricsTextfile     string
	mapFlags            []string
	manual              bool
	acceptSuggested     bool
	rememberMapping     bool
	quiet               bool
	noReport            bool
}

func generateCmd() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Build the onion model for an access log",
		Long: `Decode an access-control CSV log, clean it, resolve door classifications,
layer the doors outward from the facility entrances, infer paths and compute
statistics. The result is printed as a report and can be written to a file.

Column mappings are remembered per file layout, so the same export format only has
to be mapped once. With --manual the saved door classifications for the layout are
applied; --classifications replaces them from a YAML file and saves the result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.mapFlags, "map", nil, "column mapping as Role=Column (repeatable; roles: Timestamp, UserID, DoorID, EventType)")
	cmd.Flags().BoolVarP(&opts.acceptSuggested, "yes", "y", false, "accept the suggested column mapping without asking")
	cmd.Flags().BoolVar(&opts.rememberMapping, "remember-mapping", true, "save the column mapping for this file layout")
	cmd.Flags().BoolVar(&opts.manual, "manual", false, "apply the saved manual door classifications")
	cmd.Flags().StringVar(&opts.classificationsFile, "classifications", "", "YAML file of manual door classifications (implies --manual)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the result bundle to this file")
	cmd.Flags().StringVar(&opts.elements, "elements", "", "write the graph node and edge records (json or yaml) to this file")
	cmd.Flags().StringVar(&opts.format, "format", "", "output format: json, yaml or csv (default: from the file extension)")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write pipeline metrics in Prometheus text format to this file")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "do not print the report")

	return cmd
}

func runGenerate(cmd *cobra.Command, path string, opts generateOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := outputFormat(opts)
	if err != nil {
		return common.NewUserError("Invalid output format", err)
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := handler.HandleInterrupts(cmd.Context(), true)
	defer handler.Stop()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	upload, err := readUpload(ctx, cfg, path)
	if err != nil {
		return err
	}
	fp := upload.Table.Fingerprint()

	resolver := mappingResolver{
		store:      store,
		in:         cmd.InOrStdin(),
		out:        cmd.ErrOrStderr(),
		flags:      opts.mapFlags,
		acceptSugg: opts.acceptSuggested,
	}
	mapping, src, err := resolver.resolve(ctx, upload.Table)
	if err != nil {
		if errors.Is(err, cli.ErrInputCancelled) && handler.WasInterrupted() {
			return context.Canceled
		}
		return err
	}
	if src != mappingFromStorage && opts.rememberMapping {
		if err := store.SaveColumnMapping(ctx, fp, mapping); err != nil {
			return fmt.Errorf("failed to save column mapping: %w", err)
		}
		slog.Debug("Saved column mapping", "fingerprint", fp, "source", src)
	}

	req := session.Request{
		Table:         upload.Table,
		Mapping:       mapping,
		Raw:           upload.Raw,
		ManualEnabled: opts.manual,
	}
	if opts.classificationsFile != "" {
		record, err := readClassificationFile(opts.classificationsFile, fp)
		if err != nil {
			return err
		}
		req.ManualEnabled = true
		req.Classifications = record
	}

	cache, err := store.LoadClassificationCache(ctx)
	if err != nil {
		return fmt.Errorf("failed to load saved classifications: %w", err)
	}

	registry := metrics.NewRegistry()
	observers := []session.Observer{registry}
	if !opts.quiet {
		observers = append(observers, cli.NewProgressObserver(cmd.ErrOrStderr()))
	}
	manager := session.NewManager(cfg.Processing, cache, observers...)

	sc, genErr := manager.Generate(req)
	if handler.WasInterrupted() {
		return context.Canceled
	}
	if err := recordRun(ctx, store, req, sc, genErr); err != nil {
		slog.Warn("Could not record the run", "error", err)
	}
	if genErr != nil && common.IsFatal(genErr) {
		return common.NewUserError("Could not build the onion model", genErr)
	}

	if req.ManualEnabled && req.Classifications != nil {
		if err := store.SaveClassificationRecord(ctx, fp, req.Classifications); err != nil {
			return fmt.Errorf("failed to save classifications: %w", err)
		}
		common.LogInfo("Saved door classifications", common.Fields{
			"fingerprint": fp,
			"doors":       len(req.Classifications),
		})
	}

	registry.RecordSession(sc)

	out := cmd.OutOrStdout()
	if !opts.noReport {
		if err := cli.WriteReport(out, sc); err != nil {
			return err
		}
	}

	if opts.output != "" {
		if err := writeOutput(opts.output, format, sc); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Wrote %s", opts.output)))
	}

	if opts.elements != "" {
		if err := writeElements(opts.elements, sc); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Wrote %s", opts.elements)))
	}

	if opts.metricsTextfile != "" {
		if err := registry.WriteTextfile(opts.metricsTextfile); err != nil {
			return err
		}
	}

	if genErr != nil {
		// Empty data is reported in full above; the exit status still says so.
		return common.NewUserError("No usable events remained after cleaning", genErr)
	}
	return nil
}

func outputFormat(opts generateOptions) (export.Format, error) {
	if opts.format != "" {
		return export.ParseFormat(opts.format)
	}
	return export.FormatForPath(opts.output), nil
}

func readClassificationFile(path string, fp model.HeaderFingerprint) (model.ClassificationRecord, error) {
	f, err := os.Open(path) // #nosec G304 -- the operator names the file
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("Could not open %s", path), err)
	}
	defer func() { _ = f.Close() }()

	file, err := export.ReadClassifications(f)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("Could not read classifications from %s", path), err)
	}
	if file.Fingerprint != "" && file.Fingerprint != fp {
		slog.Warn("Classification file was written for a different file layout",
			"file_fingerprint", file.Fingerprint,
			"upload_fingerprint", fp)
	}
	return file.Doors, nil
}

func recordRun(ctx context.Context, store *storage.SQLiteStorage, req session.Request, sc *session.Context, genErr error) error {
	run := storage.SessionRun{
		SessionID:   session.ID(req),
		Fingerprint: req.Table.Fingerprint(),
		Status:      string(session.StatusFailed),
	}
	if sc != nil {
		run.Status = string(sc.Status)
		run.OriginalRows = sc.OriginalRowCount
		run.CleanedRows = sc.CleanedRowCount
	} else if genErr == nil {
		return nil
	}
	return store.RecordSessionRun(ctx, run)
}

func writeOutput(path string, format export.Format, sc *session.Context) error {
	if err := export.WriteFileAs(path, format, export.NewBundle(sc)); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

func writeElements(path string, sc *session.Context) (err error) {
	f, err := os.Create(path) // #nosec G304 -- the operator names the file
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := export.WriteElements(f, export.FormatForPath(path), sc.Elements()); err != nil {
		return fmt.Errorf("failed to write graph elements: %w", err)
	}
	return nil
}
