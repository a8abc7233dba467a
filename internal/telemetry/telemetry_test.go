package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGathersIncrementedCounters(t *testing.T) {
	r := New()
	r.SyscallsTotal.WithLabelValues("get_pid", "ok").Inc()
	r.CommitsAppended.Inc()
	r.ProcessesAlive.Set(3)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["orbital_kernel_syscalls_total"])
	assert.True(t, names["orbital_commitlog_commits_appended_total"])
	assert.True(t, names["orbital_kernel_processes_alive"])
}
