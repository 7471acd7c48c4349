package runtime

import "sync/atomic"

// MetricsState tracks SDK-level counters that must survive runtime swaps.
type MetricsState struct {
	configReloads       atomic.Int64
	credentialRotations atomic.Int64
}

// NewMetricsState constructs an empty MetricsState.
func NewMetricsState() *MetricsState {
	return &MetricsState{}
}

// IncrementConfigReloads increments the config reload counter.
func (m *MetricsState) IncrementConfigReloads() {
	if m == nil {
		return
	}

	m.configReloads.Add(1)
}

// ConfigReloads returns the current number of config reloads recorded.
func (m *MetricsState) ConfigReloads() int64 {
	if m == nil {
		return 0
	}

	return m.configReloads.Load()
}

// IncrementCredentialRotations increments the credential rotation counter.
func (m *MetricsState) IncrementCredentialRotations() {
	if m == nil {
		return
	}

	m.credentialRotations.Add(1)
}

// CredentialRotations returns the number of credential rotations applied.
func (m *MetricsState) CredentialRotations() int64 {
	if m == nil {
		return 0
	}

	return m.credentialRotations.Load()
}
