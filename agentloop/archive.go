package agentloop

import (
	"context"
	"fmt"

	"github.com/neo050/Office-Automation-Law-bot/history"
	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/store"
)

// TranscriptSummarizer produces the case summary for a transcript.
type TranscriptSummarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// BundleStore appends the transcript and summary to the folder's archive.
type BundleStore interface {
	UpsertBundle(ctx context.Context, folderID, transcript, summary string) error
}

// BundleArchiver turns a stored conversation into the archived chat bundle.
// It backs the quiet-period finalizer.
type BundleArchiver struct {
	store      *store.Store
	summarizer TranscriptSummarizer
	bundles    BundleStore
}

// NewBundleArchiver wires the archiver.
func NewBundleArchiver(s *store.Store, summarizer TranscriptSummarizer, bundles BundleStore) *BundleArchiver {
	return &BundleArchiver{store: s, summarizer: summarizer, bundles: bundles}
}

// Archive writes the session's transcript and summary into folderID. An
// empty or expired conversation archives nothing. A summary failure degrades
// to a transcript-only bundle rather than blocking the archive.
func (a *BundleArchiver) Archive(ctx context.Context, sessionKey, folderID string) error {
	h, err := a.store.LoadHistory(ctx, sessionKey)
	if err != nil {
		return fmt.Errorf("load history for archive: %w", err)
	}
	transcript := history.BuildTranscript(h)
	if transcript == "" {
		return nil
	}

	summary, err := a.summarizer.Summarize(ctx, transcript)
	if err != nil {
		logger.Warn("summary generation failed, archiving transcript only",
			"session", sessionKey, "error", err)
		summary = ""
	}

	if err := a.bundles.UpsertBundle(ctx, folderID, transcript, summary); err != nil {
		return fmt.Errorf("archive bundle: %w", err)
	}
	return nil
}
