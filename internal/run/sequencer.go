package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/credential"
	"github.com/buildharbor/signing-adapter/internal/credstore"
	"github.com/buildharbor/signing-adapter/internal/lifecycle"
	"github.com/buildharbor/signing-adapter/internal/metrics"
	"github.com/buildharbor/signing-adapter/internal/portal"
	"github.com/buildharbor/signing-adapter/internal/prompt"
	"github.com/buildharbor/signing-adapter/internal/scheduler"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

// MetadataSource resolves project metadata and published releases.
// *publishapi.Client satisfies it.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, req model.BuildRequest) (model.ProjectMetadata, error)
	EnsureReleaseExists(ctx context.Context, experienceName, platform string) ([]string, error)
}

// ConflictGuard rejects runs that would race an in-flight build.
type ConflictGuard interface {
	EnsureNoConflict(ctx context.Context, clientID, experienceName, platform, sdkVersion string) error
}

// CredentialLifecycle executes the credential phase. *lifecycle.Orchestrator
// satisfies it.
type CredentialLifecycle interface {
	Run(ctx context.Context, target credstore.Target, meta model.ProjectMetadata, opts model.CredentialOptions,
		sessions lifecycle.Sessions, prompter prompt.Prompter) (credential.Set, error)
}

// BuildScheduler enqueues the signed build.
type BuildScheduler interface {
	Schedule(ctx context.Context, req scheduler.ScheduleRequest) (string, error)
}

// Journal persists run progress. store.Store satisfies it.
type Journal interface {
	RecordRunEvent(ctx context.Context, event model.RunEvent) error
	SaveRunResult(ctx context.Context, result model.RunResult, ttl time.Duration) error
}

// Events emits canonical run events. *publisher.Publisher satisfies it.
type Events interface {
	PublishRunCompleted(ctx context.Context, result model.RunResult, clientID, status string) error
	PublishCredentialsUpdated(ctx context.Context, clientID, experienceName string, kinds []string) error
	PublishBuildScheduled(ctx context.Context, clientID, experienceName, jobID string) error
}

// AccountResolver looks up the client's signing-authority account.
type AccountResolver func(ctx context.Context, clientID string) (portal.Account, error)

// Sequencer runs the whole signing flow for one build request: metadata,
// conflict guard, credential lifecycle, release check and scheduling, with
// every step journaled. Steps run strictly in order and the first failure
// aborts the run.
type Sequencer struct {
	logger         *zap.Logger
	metadata       MetadataSource
	guard          ConflictGuard
	resolveAccount AccountResolver
	authenticator  portal.Authenticator
	lifecycle      CredentialLifecycle
	scheduler      BuildScheduler
	journal        Journal
	events         Events
	snapshotTTL    time.Duration
}

// NewSequencer wires a sequencer from its collaborators.
func NewSequencer(
	logger *zap.Logger,
	metadata MetadataSource,
	guard ConflictGuard,
	resolveAccount AccountResolver,
	authenticator portal.Authenticator,
	lc CredentialLifecycle,
	sched BuildScheduler,
	journal Journal,
	events Events,
	snapshotTTL time.Duration,
) *Sequencer {
	return &Sequencer{
		logger:         logger,
		metadata:       metadata,
		guard:          guard,
		resolveAccount: resolveAccount,
		authenticator:  authenticator,
		lifecycle:      lc,
		scheduler:      sched,
		journal:        journal,
		events:         events,
		snapshotTTL:    snapshotTTL,
	}
}

// Execute runs one build request to completion and returns the scheduled run.
func (s *Sequencer) Execute(ctx context.Context, req model.BuildRequest) (*model.RunResult, error) {
	start := time.Now()
	runID := uuid.New().String()

	log := s.logger.With(
		zap.String("run_id", runID),
		zap.String("client_id", req.ClientID),
		zap.String("experience", req.ExperienceName))

	fail := func(step string, err error) (*model.RunResult, error) {
		s.journalStep(ctx, runID, req, req.ExperienceName, step, "error", err.Error())
		_ = s.events.PublishRunCompleted(ctx, model.RunResult{RunID: runID}, req.ClientID, "error")
		metrics.IncRun("error")
		metrics.ObserveDuration(metrics.RunDuration, start, "error")
		log.Error("run.failed", zap.String("step", step), zap.Error(err))
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return fail("validate", err)
	}
	log.Info("run.started", zap.String("platform", req.Platform))

	meta, err := s.metadata.FetchMetadata(ctx, req)
	if err != nil {
		return fail("metadata", err)
	}
	experienceName := meta.ExperienceName
	if experienceName == "" {
		experienceName = req.ExperienceName
	}
	s.journalStep(ctx, runID, req, experienceName, "metadata", "ok", meta.BundleIdentifier)

	// The guard runs before any credential state is touched, so a rejected
	// run leaves nothing to undo.
	if err := s.guard.EnsureNoConflict(ctx, req.ClientID, experienceName, req.Platform, meta.SDKVersion); err != nil {
		return fail("guard", err)
	}
	s.journalStep(ctx, runID, req, experienceName, "guard", "ok", "")

	account, err := s.resolveAccount(ctx, req.ClientID)
	if err != nil {
		return fail("account", err)
	}

	// One session provider per run: portal logins are memoized within the
	// run and never shared across runs.
	sessions := portal.NewSessionProvider(s.authenticator, account, s.logger)
	prompter := prompt.NewScriptedPrompter(req.Plan)
	target := credstore.Target{ClientID: req.ClientID, ExperienceName: experienceName}

	creds, err := s.lifecycle.Run(ctx, target, meta, req.Options, sessions, prompter)
	if err != nil {
		return fail("credentials", err)
	}
	s.journalStep(ctx, runID, req, experienceName, "credentials", "ok", "")
	_ = s.events.PublishCredentialsUpdated(ctx, req.ClientID, experienceName, kindNames(creds))

	// Self-hosted projects carry their own manifest URL; only hosted
	// experiences need a published release to embed.
	var publishedIDs []string
	if req.PublicURL == "" {
		publishedIDs, err = s.metadata.EnsureReleaseExists(ctx, experienceName, req.Platform)
		if err != nil {
			return fail("release", err)
		}
		s.journalStep(ctx, runID, req, experienceName, "release", "ok", "")
	}

	extraArgs := map[string]string{"bundleIdentifier": meta.BundleIdentifier}
	if req.PublicURL != "" {
		extraArgs["publicUrl"] = req.PublicURL
	}
	jobID, err := s.scheduler.Schedule(ctx, scheduler.ScheduleRequest{
		ClientID:       req.ClientID,
		ExperienceName: experienceName,
		Platform:       req.Platform,
		SDKVersion:     meta.SDKVersion,
		PublishedIDs:   publishedIDs,
		ExtraArgs:      extraArgs,
	})
	if err != nil {
		return fail("schedule", err)
	}
	s.journalStep(ctx, runID, req, experienceName, "schedule", "ok", jobID)

	result := model.RunResult{RunID: runID, BuildID: jobID, PublishedIDs: publishedIDs}
	if err := s.journal.SaveRunResult(ctx, result, s.snapshotTTL); err != nil {
		log.Warn("run.snapshot_failed", zap.Error(err))
	}
	_ = s.events.PublishBuildScheduled(ctx, req.ClientID, experienceName, jobID)
	_ = s.events.PublishRunCompleted(ctx, result, req.ClientID, "ok")

	metrics.IncRun("ok")
	metrics.ObserveDuration(metrics.RunDuration, start, "ok")
	log.Info("run.completed",
		zap.String("job_id", jobID),
		zap.Duration("elapsed", time.Since(start)))
	return &result, nil
}

func (s *Sequencer) journalStep(ctx context.Context, runID string, req model.BuildRequest, experienceName, step, status, detail string) {
	event := model.RunEvent{
		RunID:          runID,
		ClientID:       req.ClientID,
		ExperienceName: experienceName,
		Platform:       req.Platform,
		Step:           step,
		Status:         status,
		Detail:         detail,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.journal.RecordRunEvent(ctx, event); err != nil {
		s.logger.Warn("run.journal_failed",
			zap.String("run_id", runID),
			zap.String("step", step),
			zap.Error(err))
	}
}

func kindNames(creds credential.Set) []string {
	kinds := creds.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
