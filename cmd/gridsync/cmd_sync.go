package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vogtb/gridsync/packages/collab"
	"github.com/vogtb/gridsync/packages/config"
	"github.com/vogtb/gridsync/packages/draft"
	"github.com/vogtb/gridsync/packages/formula"
	"github.com/vogtb/gridsync/packages/grid"
	"github.com/vogtb/gridsync/packages/livews"
	"github.com/vogtb/gridsync/packages/server"
)

type cellEdit struct {
	row, col int
	value    string
}

// parseEdit splits "B2=value" at the first "=", so "B2==A1*2" writes a formula
func parseEdit(arg string) (cellEdit, error) {
	addr, value, ok := strings.Cut(arg, "=")
	if !ok {
		return cellEdit{}, fmt.Errorf("edit %q is not CELL=value", arg)
	}
	ref, err := formula.ParseCellRef(strings.ToUpper(strings.TrimSpace(addr)))
	if err != nil {
		return cellEdit{}, fmt.Errorf("edit %q: %w", arg, err)
	}
	return cellEdit{row: ref.Row, col: ref.Col, value: value}, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if holder, _ := cmd.Flags().GetString("holder"); holder != "" {
		cfg.Client.Holder = holder
	}
	edits := make([]cellEdit, 0, len(args)-1)
	for _, arg := range args[1:] {
		edit, err := parseEdit(arg)
		if err != nil {
			return err
		}
		edits = append(edits, edit)
	}

	var out io.Writer
	if syncPrint {
		out = cmd.OutOrStdout()
	}
	return syncDocument(cmd.Context(), cfg, logger, args[0], edits, out)
}

func openDrafts(cfg config.DraftConfig, logger *slog.Logger) (draft.Store, func() error, error) {
	if cfg.InMemory {
		return draft.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := draft.OpenBadger(draft.BadgerConfig{
		Path:       cfg.Path,
		SyncWrites: true,
		TTL:        cfg.TTL,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// syncDocument runs one edit session: open, apply edits, close. out
// receives the final values when non-nil.
func syncDocument(ctx context.Context, cfg config.Config, logger *slog.Logger, documentID string, edits []cellEdit, out io.Writer) (err error) {
	client, err := server.NewClient(cfg.Client.BaseURL, documentID,
		server.WithTableKind(cfg.Client.TableKind),
		server.WithHolder(cfg.Client.Holder),
	)
	if err != nil {
		return err
	}

	drafts, closeDrafts, err := openDrafts(cfg.Drafts, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeDrafts())
	}()

	ocfg := collab.DefaultConfig(documentID, client)
	ocfg.TableKind = cfg.Client.TableKind
	ocfg.Holder = cfg.Client.Holder
	ocfg.Sessions = client
	ocfg.Drafts = drafts
	ocfg.Save = collab.Scheduler{Debounce: cfg.Client.Debounce, MaxWait: cfg.Client.MaxWait}
	ocfg.Heartbeat = cfg.Client.Heartbeat
	ocfg.Logger = logger
	ocfg.Metrics = collab.NewMetrics(prometheus.NewRegistry())

	if cfg.Client.Live {
		ws, err := livews.Dial(ctx, client.LiveURL(), nil, logger)
		if err != nil {
			logger.Warn("live channel unavailable, saving snapshots", "error", err)
		} else {
			defer ws.Close()
			ocfg.Live = ws
		}
	}

	doc := grid.NewDocument(syncRows, syncCols, grid.WithLogger(logger))
	orch, err := collab.New(doc, ocfg)
	if err != nil {
		return err
	}
	if err := orch.Open(ctx); err != nil {
		return err
	}

	status := orch.Status()
	if status.ReadOnly && len(edits) > 0 {
		closeErr := orch.Close(ctx)
		return errors.Join(&collab.LockConflictError{DocumentID: documentID, Holder: status.LockHolder}, closeErr)
	}

	for _, edit := range edits {
		if err := doc.SetCell(edit.row, edit.col, edit.value); err != nil {
			closeErr := orch.Close(ctx)
			return errors.Join(fmt.Errorf("set %s: %w", formula.FormatAddress(edit.row, edit.col), err), closeErr)
		}
	}

	if err := orch.Close(ctx); err != nil {
		return err
	}
	status = orch.Status()
	if status.State == collab.StateError {
		return fmt.Errorf("sync %s: %w", documentID, status.Err)
	}
	logger.Info("document synced", "document", documentID, "revision", status.Revision, "edits", len(edits))

	if out != nil {
		return writeGrid(out, doc.Snapshot().Values)
	}
	return nil
}
