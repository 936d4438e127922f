package collab

import (
	"context"
	"errors"
	"time"

	"github.com/vogtb/gridsync/packages/draft"
)

func (o *Orchestrator) draftKey() string {
	if k, ok := o.cfg.Adapter.(DraftKeyer); ok {
		if key := k.DraftKey(); key != "" {
			return key
		}
	}
	return draft.Key(o.cfg.DocumentID, o.cfg.TableKind)
}

func (o *Orchestrator) loadDraft(ctx context.Context) (draft.Record, bool) {
	if o.cfg.Drafts == nil {
		return draft.Record{}, false
	}
	rec, err := o.cfg.Drafts.Load(ctx, o.draftKey())
	if err != nil {
		if !errors.Is(err, draft.ErrNotFound) {
			o.logger.Warn("load draft", "error", err)
		}
		return draft.Record{}, false
	}
	return rec, true
}

// saveDraft stores the current snapshot with the revision it was based on
func (o *Orchestrator) saveDraft(ctx context.Context, now time.Time) {
	if o.cfg.Drafts == nil {
		return
	}
	snap := o.doc.Snapshot()
	o.mu.Lock()
	base := o.revision
	o.draftPending.reset()
	o.mu.Unlock()

	rec := draft.Record{Snapshot: snap, BaseRevision: base, SavedAt: now}
	if err := o.cfg.Drafts.Save(ctx, o.draftKey(), rec); err != nil {
		o.logger.Warn("save draft", "error", err)
	}
}

func (o *Orchestrator) deleteDraft(ctx context.Context) {
	if o.cfg.Drafts == nil {
		return
	}
	o.mu.Lock()
	o.draftPending.reset()
	o.mu.Unlock()
	if err := o.cfg.Drafts.Delete(ctx, o.draftKey()); err != nil && !errors.Is(err, draft.ErrNotFound) {
		o.logger.Warn("delete draft", "error", err)
	}
}
