package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neo050/Office-Automation-Law-bot/logger"
)

const linkMessagePrefix = "סיימנו לקלוט את כלל המסמכים – תוכל לצפות כאן:\n"

// LinkResolver turns a Drive folder id into a shareable link. exists=false
// means the folder disappeared since scheduling.
type LinkResolver interface {
	FolderLink(ctx context.Context, folderID string) (link string, exists bool, err error)
}

// Sender delivers the consolidated link message.
type Sender interface {
	SendReliable(ctx context.Context, to, text, fallbackTemplate string) error
}

// Archiver persists the conversation bundle for a session before its link
// goes out. The idle finalizer runs the same archival earlier on a
// best-effort basis; the sweep is the durable path.
type Archiver interface {
	Archive(ctx context.Context, sessionKey, folderID string) error
}

// Sweeper periodically claims due deliveries and sends each session its
// consolidated document link. Entries are claimed before any side effect, so
// a crash mid-delivery drops the link rather than duplicating it.
type Sweeper struct {
	scheduler        *Scheduler
	links            LinkResolver
	archiver         Archiver
	sender           Sender
	fallbackTemplate string

	cron *cron.Cron
}

// NewSweeper builds a sweeper over the scheduler. fallbackTemplate names the
// pre-approved template used when the free-form link message is rejected.
func NewSweeper(scheduler *Scheduler, links LinkResolver, archiver Archiver, sender Sender, fallbackTemplate string) *Sweeper {
	return &Sweeper{
		scheduler:        scheduler,
		links:            links,
		archiver:         archiver,
		sender:           sender,
		fallbackTemplate: fallbackTemplate,
	}
}

// Start launches the sweep loop at the given interval.
func (s *Sweeper) Start(interval time.Duration) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	logger.Info("delivery sweeper started", "interval", interval.String())
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep claims and delivers every entry currently due.
func (s *Sweeper) Sweep(ctx context.Context) {
	for {
		d, err := s.scheduler.ClaimDue(ctx, time.Now())
		if err != nil {
			logger.Error("claim due delivery failed", "error", err)
			return
		}
		if d == nil {
			return
		}
		s.deliver(ctx, d.SessionKey, d.FolderID)
	}
}

func (s *Sweeper) deliver(ctx context.Context, sessionKey, folderID string) {
	link, exists, err := s.links.FolderLink(ctx, folderID)
	if err != nil {
		logger.Error("resolve folder link failed", "session", sessionKey, "folderId", folderID, "error", err)
		return
	}
	if !exists {
		logger.Warn("scheduled folder no longer exists", "session", sessionKey, "folderId", folderID)
		return
	}
	// The idle finalizer may have archived already; another pass appends a
	// fresh timestamped section. A failure here must not hold the link
	// hostage, the folder contents stand on their own.
	if err := s.archiver.Archive(ctx, sessionKey, folderID); err != nil {
		logger.Warn("archive before delivery failed", "session", sessionKey, "folderId", folderID, "error", err)
	}
	if err := s.sender.SendReliable(ctx, sessionKey, linkMessagePrefix+link, s.fallbackTemplate); err != nil {
		logger.Error("consolidated link delivery failed", "session", sessionKey, "error", err)
		return
	}
	logger.Info("consolidated link delivered", "session", sessionKey, "folderId", folderID)
}
