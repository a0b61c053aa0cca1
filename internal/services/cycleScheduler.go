package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/sources"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultOutreachBatchSize = 5
	DefaultTenantMinScore    = 7
	maxCycleLogMessage       = 500
)

// DefaultKeywords are scraped for tenants without a custom configuration
var DefaultKeywords = []string{
	"looking for developer",
	"need help with",
	"struggling with",
	"recommendations for",
	"automation",
	"SaaS",
	"startup",
	"how do I",
}

var cycleLog = logging.New("CycleScheduler")

// Scraper produces the ranked candidate list of one tenant
type Scraper interface {
	Scrape(ctx context.Context, tc dto.TenantConfig) []dto.RawCandidate
}

// Dispatcher runs the outreach actions of one tenant
type Dispatcher interface {
	ProcessBatch(ctx context.Context, tc dto.TenantConfig, limit int) (int, error)
}

// CycleSettings tunes the scheduler
type CycleSettings struct {
	QualifyBatchSize  int
	OutreachBatchSize int
	EnableOutreach    bool
}

// CycleSummary aggregates the outcome of one cycle across tenants
type CycleSummary struct {
	Tenants    int           `json:"tenants"`
	Failed     int           `json:"failed"`
	NewLeads   int           `json:"new_leads"`
	Qualified  int           `json:"qualified"`
	EmailsSent int           `json:"emails_sent"`
	Duration   time.Duration `json:"duration"`
}

type tenantResult struct {
	newLeads   int
	qualified  int
	emailsSent int
}

// CycleScheduler drives scrape, persist, qualify and outreach for every active tenant.
// Tenants run one after another and a failure in one never reaches the others.
type CycleScheduler struct {
	store      Store
	scraper    Scraper
	qualifier  *Qualifier
	dispatcher Dispatcher
	settings   CycleSettings
	group      singleflight.Group
}

// NewCycleScheduler creates a scheduler. A nil dispatcher disables outreach.
func NewCycleScheduler(store Store, scraper Scraper, qualifier *Qualifier, dispatcher Dispatcher, settings CycleSettings) *CycleScheduler {
	if settings.QualifyBatchSize <= 0 {
		settings.QualifyBatchSize = DefaultQualifyBatchSize
	}
	if settings.OutreachBatchSize <= 0 {
		settings.OutreachBatchSize = DefaultOutreachBatchSize
	}
	return &CycleScheduler{
		store:      store,
		scraper:    scraper,
		qualifier:  qualifier,
		dispatcher: dispatcher,
		settings:   settings,
	}
}

// DefaultTenantConfig is used for tenants that never saved their own settings
func DefaultTenantConfig(userID string) dto.TenantConfig {
	platforms := make([]string, len(DefaultPlatforms))
	for i, p := range DefaultPlatforms {
		platforms[i] = string(p)
	}
	return dto.TenantConfig{
		UserID:    userID,
		Keywords:  append([]string(nil), DefaultKeywords...),
		Languages: []string{sources.LangEnglish},
		Platforms: platforms,
		MinScore:  DefaultTenantMinScore,
	}
}

// RunCycle processes every active tenant once. Concurrent callers share the
// running cycle instead of starting a second one.
func (s *CycleScheduler) RunCycle(ctx context.Context) (CycleSummary, error) {
	v, err, shared := s.group.Do("cycle", func() (interface{}, error) {
		return s.runCycle(ctx)
	})
	if shared {
		cycleLog.Debug("Joined a cycle already in progress", nil)
	}
	summary, _ := v.(CycleSummary)
	return summary, err
}

func (s *CycleScheduler) runCycle(ctx context.Context) (CycleSummary, error) {
	start := time.Now()
	var summary CycleSummary

	cycleLog.Banner()
	cycleLog.Info("CYCLE STARTED", map[string]interface{}{"started_at": start.UTC().Format(time.RFC3339)})

	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		cycleLog.Error("Failed to list active tenants, skipping cycle", map[string]interface{}{"error": err.Error()})
		return summary, fmt.Errorf("failed to list active tenants: %w", err)
	}
	summary.Tenants = len(tenants)

	for _, tenant := range tenants {
		if ctx.Err() != nil {
			cycleLog.Warn("Cycle cancelled between tenants", map[string]interface{}{"remaining_from": tenant.ID})
			break
		}

		tenantStart := time.Now()
		tc, res, err := s.processTenant(ctx, tenant)
		summary.NewLeads += res.newLeads
		summary.Qualified += res.qualified
		summary.EmailsSent += res.emailsSent
		if err != nil {
			summary.Failed++
		}
		s.writeCycleLog(ctx, tc, res, err, time.Since(tenantStart))
	}

	summary.Duration = time.Since(start)
	cycleLog.Info("CYCLE COMPLETED", map[string]interface{}{
		"tenants":      summary.Tenants,
		"failed":       summary.Failed,
		"new_leads":    summary.NewLeads,
		"qualified":    summary.Qualified,
		"emails_sent":  summary.EmailsSent,
		"duration_sec": summary.Duration.Seconds(),
	})
	cycleLog.Banner()
	return summary, nil
}

// processTenant runs one tenant's pipeline. Panics are converted into errors so
// they end up in the cycle log like any other tenant failure.
func (s *CycleScheduler) processTenant(ctx context.Context, tenant dto.Tenant) (tc dto.TenantConfig, res tenantResult, err error) {
	tc = DefaultTenantConfig(tenant.ID)
	defer func() {
		if r := recover(); r != nil {
			cycleLog.Error("Tenant processing panicked", map[string]interface{}{
				"user_id": tenant.ID,
				"panic":   fmt.Sprint(r),
				"stack":   string(debug.Stack()),
			})
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	custom, err := s.store.GetTenantConfig(ctx, tenant.ID)
	if err != nil {
		return tc, res, fmt.Errorf("failed to load tenant config: %w", err)
	}
	if custom != nil {
		tc = *custom
		tc.UserID = tenant.ID
	}

	cycleLog.Info("Processing tenant", map[string]interface{}{
		"user_id":   tenant.ID,
		"custom":    custom != nil,
		"keywords":  len(tc.Keywords),
		"languages": tc.Languages,
		"platforms": tc.Platforms,
	})

	candidates := s.scraper.Scrape(ctx, tc)

	res.newLeads, err = s.persistNew(ctx, tenant.ID, candidates)
	if err != nil {
		return tc, res, err
	}

	res.qualified, err = s.qualifyPending(ctx, tenant.ID)
	if err != nil {
		return tc, res, err
	}

	if s.outreachEnabled(tc) {
		res.emailsSent, err = s.dispatcher.ProcessBatch(ctx, tc, s.settings.OutreachBatchSize)
		if err != nil {
			return tc, res, fmt.Errorf("outreach failed: %w", err)
		}
	}

	cycleLog.Info("Tenant completed", map[string]interface{}{
		"user_id":     tenant.ID,
		"candidates":  len(candidates),
		"new_leads":   res.newLeads,
		"qualified":   res.qualified,
		"emails_sent": res.emailsSent,
	})
	return tc, res, nil
}

// persistNew stores candidates whose natural key is not yet known for the tenant
func (s *CycleScheduler) persistNew(ctx context.Context, userID string, candidates []dto.RawCandidate) (int, error) {
	created := 0
	for _, c := range candidates {
		externalID := sources.PersistentID(c)
		exists, err := s.store.LeadExists(ctx, userID, c.Platform, externalID)
		if err != nil {
			return created, fmt.Errorf("failed to check lead existence: %w", err)
		}
		if exists {
			continue
		}

		lead := &dto.Lead{
			UserID:          userID,
			Username:        c.AuthorHandle,
			Platform:        c.Platform,
			ProfileURL:      c.ProfileURL,
			PostURL:         c.CanonicalURL,
			ExternalID:      externalID,
			Source:          c.SourceLabel,
			Language:        c.Language,
			Title:           c.Title,
			Content:         c.BodyText,
			SourceCreatedAt: c.CreatedAt,
			Status:          dto.LeadStatusNew,
		}
		if _, err := s.store.InsertLead(ctx, lead); err != nil {
			if errors.Is(err, dto.ErrDuplicate) {
				continue
			}
			return created, fmt.Errorf("failed to insert lead: %w", err)
		}
		created++
	}
	return created, nil
}

// qualifyPending scores the tenant's unscored leads and writes the scores back
func (s *CycleScheduler) qualifyPending(ctx context.Context, userID string) (int, error) {
	if !s.qualifier.Enabled() {
		cycleLog.Debug("Qualification disabled, leads stay unscored", map[string]interface{}{"user_id": userID})
		return 0, nil
	}

	pending, err := s.store.ListUnscoredLeads(ctx, userID, s.settings.QualifyBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unscored leads: %w", err)
	}

	qualified := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		q := s.qualifier.QualifyLead(ctx, &pending[i])
		if q == nil {
			if ctx.Err() != nil {
				break
			}
			if err := s.store.RecordQualificationFailure(ctx, pending[i].ID); err != nil {
				cycleLog.Warn("Failed to record qualification failure", map[string]interface{}{
					"lead_id": pending[i].ID,
					"error":   err.Error(),
				})
			}
			continue
		}
		if err := s.store.UpdateLeadScore(ctx, pending[i].ID, dto.ScoreUpdateFrom(q)); err != nil {
			return qualified, fmt.Errorf("failed to update lead score: %w", err)
		}
		qualified++
	}
	return qualified, nil
}

func (s *CycleScheduler) outreachEnabled(tc dto.TenantConfig) bool {
	if !s.settings.EnableOutreach || s.dispatcher == nil {
		return false
	}
	return tc.OutreachEnabled == nil || *tc.OutreachEnabled
}

func (s *CycleScheduler) writeCycleLog(ctx context.Context, tc dto.TenantConfig, res tenantResult, runErr error, elapsed time.Duration) {
	entry := &dto.CycleLog{
		UserID:          tc.UserID,
		EventType:       dto.CycleEventScrape,
		Platform:        joinPlatforms(resolvePlatforms(tc.Platforms)),
		LeadsFound:      res.newLeads,
		EmailsSent:      res.emailsSent,
		DurationSeconds: elapsed.Seconds(),
	}

	switch {
	case runErr != nil:
		entry.Status = dto.CycleStatusError
		entry.ErrorMessage = prefix(runErr.Error(), maxCycleLogMessage)
		cycleLog.Error("Tenant cycle failed", map[string]interface{}{"user_id": tc.UserID, "error": runErr.Error()})
	case res.newLeads > 0:
		entry.Status = dto.CycleStatusSuccess
		entry.Message = fmt.Sprintf("Found %d new leads, qualified %d, sent %d emails", res.newLeads, res.qualified, res.emailsSent)
	default:
		entry.Status = dto.CycleStatusNoNewLeads
		entry.Message = "No new leads found"
	}

	// Use a fresh context so cancellation of the cycle still records the outcome
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.InsertCycleLog(logCtx, entry); err != nil {
		cycleLog.Warn("Failed to write cycle log", map[string]interface{}{"user_id": tc.UserID, "error": err.Error()})
	}
}

// RunContinuously runs a cycle, sleeps interval, and repeats until ctx is done
func (s *CycleScheduler) RunContinuously(ctx context.Context, interval time.Duration) error {
	cycleLog.Info("Continuous mode started", map[string]interface{}{"interval": interval.String()})
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			cycleLog.Error("Cycle failed", map[string]interface{}{"error": err.Error()})
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			cycleLog.Info("Continuous mode stopped", nil)
			return ctx.Err()
		case <-timer.C:
		}
	}
}
