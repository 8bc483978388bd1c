package metrics

import "github.com/prometheus/client_golang/prometheus"

// LeaseMetrics counts lease protocol outcomes.
type LeaseMetrics struct {
	AcquiresTotal   *prometheus.CounterVec
	HeartbeatsTotal *prometheus.CounterVec
	ReleasesTotal   *prometheus.CounterVec
}

// NewLeaseMetrics creates and registers the lease counter set.
func NewLeaseMetrics(r *Registry) *LeaseMetrics {
	lm := &LeaseMetrics{
		AcquiresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editlock_lease_acquires_total",
			Help: "Lease acquire attempts by outcome (acquired, refreshed, denied).",
		}, []string{"outcome"}),
		HeartbeatsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editlock_lease_heartbeats_total",
			Help: "Lease heartbeats by result (extended, rejected).",
		}, []string{"result"}),
		ReleasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "editlock_lease_releases_total",
			Help: "Lease releases by outcome (released, already_gone, rejected).",
		}, []string{"outcome"}),
	}
	if r != nil {
		r.MustRegister(lm.AcquiresTotal, lm.HeartbeatsTotal, lm.ReleasesTotal)
	}
	return lm
}

// VersionMetrics counts guarded document writes.
type VersionMetrics struct {
	AppliesTotal   prometheus.Counter
	ConflictsTotal prometheus.Counter
}

// NewVersionMetrics creates and registers the version counter set.
func NewVersionMetrics(r *Registry) *VersionMetrics {
	vm := &VersionMetrics{
		AppliesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "editlock_version_applies_total",
			Help: "Document writes that passed the version check.",
		}),
		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "editlock_version_conflicts_total",
			Help: "Document writes rejected by the version check.",
		}),
	}
	if r != nil {
		r.MustRegister(vm.AppliesTotal, vm.ConflictsTotal)
	}
	return vm
}
