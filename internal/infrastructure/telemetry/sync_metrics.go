package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// SyncMetrics are the instruments recorded by the sync jobs.
// A nil *SyncMetrics records nothing, so services may run without metrics.
type SyncMetrics struct {
	jobDuration          *Histogram
	adapterDuration      *Histogram
	discoveryAccounts    *Counter
	taxonomyEntries      *Counter
	taxonomyHealth       *Gauge
	inheritanceDecisions *Counter
	integrityIssues      *Counter
	integrityFixes       *Counter
	linkTransitions      *Counter
	linksMigrated        *Counter
}

// NewSyncMetrics creates every instrument on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &SyncMetrics{}
	var err error

	if m.jobDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "channelsync_job_duration_seconds",
		Description: "Duration of sync job runs",
		Unit:        "s",
		Boundaries:  JobDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.adapterDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "channelsync_adapter_call_duration_seconds",
		Description: "Duration of channel adapter calls",
		Unit:        "s",
		Boundaries:  CallDurationBuckets,
	}); err != nil {
		return nil, err
	}

	counters := []struct {
		dst        **Counter
		name, desc string
		unit       string
	}{
		{&m.discoveryAccounts, "channelsync_discovery_accounts_total", "Accounts processed by discovery", "{accounts}"},
		{&m.taxonomyEntries, "channelsync_taxonomy_entries_total", "Taxonomy entries written by upserts", "{entries}"},
		{&m.inheritanceDecisions, "channelsync_inheritance_decisions_total", "Attribute inheritance decisions", "{decisions}"},
		{&m.integrityIssues, "channelsync_integrity_issues_total", "Integrity issues detected", "{issues}"},
		{&m.integrityFixes, "channelsync_integrity_fixes_total", "Integrity fixes attempted", "{fixes}"},
		{&m.linkTransitions, "channelsync_link_transitions_total", "Link status transitions", "{transitions}"},
		{&m.linksMigrated, "channelsync_links_migrated_total", "Legacy mappings migrated", "{mappings}"},
	}
	for _, c := range counters {
		if *c.dst, err = NewCounter(meter, c.name, c.desc, c.unit); err != nil {
			return nil, err
		}
	}

	if m.taxonomyHealth, err = NewGauge(meter,
		"channelsync_taxonomy_health_score",
		"Latest taxonomy health score per account",
		"{score}",
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordJob records the duration of a job run
func (m *SyncMetrics) RecordJob(ctx context.Context, job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobDuration.RecordDuration(ctx, d, AttrJob.String(job), outcome(err))
}

// RecordAdapterCall records the duration of one channel adapter call
func (m *SyncMetrics) RecordAdapterCall(ctx context.Context, channelType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.adapterDuration.RecordDuration(ctx, d, AttrChannelType.String(channelType), outcome(err))
}

// RecordDiscoveryAccount counts one account outcome: success, failed or skipped
func (m *SyncMetrics) RecordDiscoveryAccount(ctx context.Context, channelType, result string) {
	if m == nil {
		return
	}
	m.discoveryAccounts.Inc(ctx, AttrChannelType.String(channelType), AttrOutcome.String(result))
}

// RecordTaxonomyEntries counts entries written with the given change kind
func (m *SyncMetrics) RecordTaxonomyEntries(ctx context.Context, change string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.taxonomyEntries.Add(ctx, int64(n), AttrOutcome.String(change))
}

// RecordHealthScore stores the latest health score of an account
func (m *SyncMetrics) RecordHealthScore(ctx context.Context, accountID string, score int) {
	if m == nil {
		return
	}
	m.taxonomyHealth.Record(ctx, int64(score), AttrAccountID.String(accountID))
}

// RecordInheritance counts inheritance decisions of one kind
func (m *SyncMetrics) RecordInheritance(ctx context.Context, decision string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.inheritanceDecisions.Add(ctx, int64(n), AttrOutcome.String(decision))
}

// RecordIntegrityIssue counts a detected issue
func (m *SyncMetrics) RecordIntegrityIssue(ctx context.Context, check, severity string) {
	if m == nil {
		return
	}
	m.integrityIssues.Inc(ctx, AttrCheck.String(check), AttrSeverity.String(severity))
}

// RecordIntegrityFix counts an attempted fix
func (m *SyncMetrics) RecordIntegrityFix(ctx context.Context, check string, err error) {
	if m == nil {
		return
	}
	m.integrityFixes.Inc(ctx, AttrCheck.String(check), outcome(err))
}

// RecordLinkTransition counts a link entering status
func (m *SyncMetrics) RecordLinkTransition(ctx context.Context, level, status string) {
	if m == nil {
		return
	}
	m.linkTransitions.Inc(ctx, AttrLinkLevel.String(level), AttrLinkStatus.String(status))
}

// RecordMigratedMapping counts one legacy mapping outcome
func (m *SyncMetrics) RecordMigratedMapping(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.linksMigrated.Inc(ctx, AttrOutcome.String(result))
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return AttrOutcome.String("error")
	}
	return AttrOutcome.String("ok")
}
