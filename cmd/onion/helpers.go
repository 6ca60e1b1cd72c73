package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/onion-topology/internal/cli"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/ingest"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/normalize"
	"github.com/Veraticus/onion-topology/internal/storage"
)

// initStorage opens the classification database and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, common.NewUserError("Could not open the classification database", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// readUpload decodes the access log at path.
func readUpload(ctx context.Context, cfg config.Config, path string) (*ingest.Upload, error) {
	f, err := os.Open(path) // #nosec G304 -- the operator names the file
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("Could not open %s", path), err)
	}
	defer func() { _ = f.Close() }()

	upload, err := ingest.NewParser(cfg.Files).ParseFile(ctx, path, f)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("Could not read %s as a CSV event log", path), err)
	}
	return upload, nil
}

// parseMapFlags turns "Role=Column" pairs into a column mapping.
func parseMapFlags(pairs []string) (model.ColumnMapping, error) {
	mapping := make(model.ColumnMapping, len(pairs))
	for _, pair := range pairs {
		roleName, column, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--map %q: expected Role=Column", pair)
		}
		role, ok := model.ParseRole(roleName)
		if !ok {
			return nil, fmt.Errorf("--map %q: unknown role %q", pair, roleName)
		}
		column = strings.TrimSpace(column)
		if prev, dup := mapping[column]; dup {
			return nil, fmt.Errorf("--map %q: column %q is already mapped to %s", pair, column, prev)
		}
		mapping[column] = role
	}
	return mapping, nil
}

// mappingSource records where a column mapping came from.
type mappingSource string

const (
	mappingFromFlags    mappingSource = "flags"
	mappingFromStorage  mappingSource = "saved"
	mappingFromSuggest  mappingSource = "suggested"
	mappingFromOperator mappingSource = "prompt"
)

// mappingResolver picks the column mapping for an upload: explicit flags first,
// then the mapping saved for the file layout, then header-name suggestions, asking
// the operator when suggestions are incomplete or not accepted up front.
type mappingResolver struct {
	store      *storage.SQLiteStorage
	in         io.Reader
	out        io.Writer
	flags      []string
	acceptSugg bool
}

func (r mappingResolver) resolve(ctx context.Context, table model.RawTable) (model.ColumnMapping, mappingSource, error) {
	if len(r.flags) == 0 {
		fp := table.Fingerprint()
		saved, err := r.store.GetColumnMapping(ctx, fp)
		switch {
		case err == nil:
			if verr := normalize.ValidateMapping(table.Headers, saved); verr == nil {
				return saved, mappingFromStorage, nil
			}
			slog.Warn("Saved column mapping no longer fits the file; asking again", "fingerprint", fp)
		case !errors.Is(err, common.ErrNotFound):
			return nil, "", fmt.Errorf("failed to load column mapping: %w", err)
		}
	}
	return r.fresh(ctx, table)
}

// fresh resolves a mapping ignoring any saved one.
func (r mappingResolver) fresh(ctx context.Context, table model.RawTable) (model.ColumnMapping, mappingSource, error) {
	if len(r.flags) > 0 {
		mapping, err := parseMapFlags(r.flags)
		if err != nil {
			return nil, "", common.NewUserError("Invalid column mapping", err)
		}
		return r.validated(table, mapping, mappingFromFlags)
	}

	suggested := ingest.SuggestMapping(table.Headers)
	if r.acceptSugg {
		return r.validated(table, suggested, mappingFromSuggest)
	}

	prompter := cli.NewMappingPrompter(r.in, r.out)
	mapping, err := prompter.PromptMapping(ctx, table.Headers, suggested)
	if err != nil {
		return nil, "", err
	}
	return r.validated(table, mapping, mappingFromOperator)
}

func (r mappingResolver) validated(table model.RawTable, mapping model.ColumnMapping, src mappingSource) (model.ColumnMapping, mappingSource, error) {
	if err := normalize.ValidateMapping(table.Headers, mapping); err != nil {
		return nil, "", common.NewUserError("The column mapping does not fit this file", err)
	}
	return mapping, src, nil
}
