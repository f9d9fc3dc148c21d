package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookworks/hookrun/config"
	"github.com/hookworks/hookrun/internal/scheduler"
)

func instance(plugin, hook, dir string, deps ...config.DependencyRef) *scheduler.Instance {
	return scheduler.NewInstance(&config.ResolvedHookConfig{
		PluginName: plugin,
		HookName:   hook,
		Directory:  dir,
		Command:    "true",
		Enabled:    true,
		DependsOn:  deps,
	})
}

func phaseKeys(phase scheduler.Phase) []string {
	keys := make([]string, 0, len(phase.Instances))
	for _, inst := range phase.Instances {
		keys = append(keys, inst.Key())
	}

	return keys
}

func TestNamePhase(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		hookName string
		expected int
	}{
		{"format", scheduler.PhaseFormat},
		{"format_prettier", scheduler.PhaseFormat},
		{"lint", scheduler.PhaseLint},
		{"lint_js", scheduler.PhaseLint},
		{"typecheck", scheduler.PhaseTypecheck},
		{"test", scheduler.PhaseTest},
		{"test_unit", scheduler.PhaseTest},
		{"advisory", scheduler.PhaseAdvisory},
		{"advisory_notes", scheduler.PhaseAdvisory},
		{"formatter", scheduler.PhaseLint},
		{"testing", scheduler.PhaseLint},
		{"Format", scheduler.PhaseLint},
		{"build", scheduler.PhaseLint},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.hookName, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, scheduler.NamePhase(tc.hookName))
		})
	}
}

func TestPlanOrdersByNamePhase(t *testing.T) {
	t.Parallel()

	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "test_unit", "/d"),
		instance("p", "lint", "/d"),
		instance("p", "format", "/d"),
	})
	require.NoError(t, err)
	require.Len(t, phases, 3)

	assert.Equal(t, []string{"p/format@/d"}, phaseKeys(phases[0]))
	assert.Equal(t, []string{"p/lint@/d"}, phaseKeys(phases[1]))
	assert.Equal(t, []string{"p/test_unit@/d"}, phaseKeys(phases[2]))
}

func TestPlanSamePhaseRunsTogether(t *testing.T) {
	t.Parallel()

	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("a", "lint", "/d"),
		instance("b", "lint_js", "/d"),
		instance("b", "lint_js", "/e"),
	})
	require.NoError(t, err)
	require.Len(t, phases, 1)

	assert.Equal(t, []string{"a/lint@/d", "b/lint_js@/d", "b/lint_js@/e"}, phaseKeys(phases[0]))
}

func TestPlanDependencyPullsInstanceLater(t *testing.T) {
	t.Parallel()

	// lint_slow would run in the lint phase by name, but it depends on a
	// test-phase hook, so it must land after it.
	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "test", "/d"),
		instance("p", "lint_slow", "/d", config.DependencyRef{Plugin: "p", Hook: "test"}),
		instance("p", "lint", "/d"),
	})
	require.NoError(t, err)
	require.Len(t, phases, 3)

	assert.Equal(t, []string{"p/lint@/d"}, phaseKeys(phases[0]))
	assert.Equal(t, []string{"p/test@/d"}, phaseKeys(phases[1]))
	assert.Equal(t, []string{"p/lint_slow@/d"}, phaseKeys(phases[2]))
}

func TestPlanWildcardRunsLast(t *testing.T) {
	t.Parallel()

	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "summary", "/d", config.DependencyRef{Plugin: "*", Hook: "*"}),
		instance("p", "test", "/d"),
		instance("p", "format", "/d"),
	})
	require.NoError(t, err)
	require.Len(t, phases, 3)

	assert.False(t, phases[0].Final)
	assert.False(t, phases[1].Final)
	require.True(t, phases[2].Final)
	assert.Equal(t, []string{"p/summary@/d"}, phaseKeys(phases[2]))
}

func TestPlanWildcardSubStaging(t *testing.T) {
	t.Parallel()

	// Both run after everything, and report additionally runs after collect.
	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "lint", "/d"),
		instance("p", "collect", "/d", config.DependencyRef{Plugin: "*", Hook: "*"}),
		instance("p", "report", "/d",
			config.DependencyRef{Plugin: "*", Hook: "*"},
			config.DependencyRef{Plugin: "p", Hook: "collect"},
		),
	})
	require.NoError(t, err)
	require.Len(t, phases, 3)

	assert.Equal(t, []string{"p/lint@/d"}, phaseKeys(phases[0]))
	require.True(t, phases[1].Final)
	assert.Equal(t, []string{"p/collect@/d"}, phaseKeys(phases[1]))
	require.True(t, phases[2].Final)
	assert.Equal(t, []string{"p/report@/d"}, phaseKeys(phases[2]))
}

func TestPlanDependencyOnWildcardRejected(t *testing.T) {
	t.Parallel()

	_, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "summary", "/d", config.DependencyRef{Plugin: "*", Hook: "*"}),
		instance("p", "lint", "/d", config.DependencyRef{Plugin: "p", Hook: "summary"}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runs after everything")
}

func TestPlanMissingRequiredDependency(t *testing.T) {
	t.Parallel()

	_, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "lint", "/d", config.DependencyRef{Plugin: "other", Hook: "format"}),
	})
	require.Error(t, err)

	var missing *scheduler.MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "p/lint@/d", missing.Instance)
	assert.Equal(t, "other/format", missing.Dependency)
}

func TestPlanMissingOptionalDependencyDropped(t *testing.T) {
	t.Parallel()

	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "lint", "/d", config.DependencyRef{Plugin: "other", Hook: "format", Optional: true}),
	})
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, []string{"p/lint@/d"}, phaseKeys(phases[0]))
}

func TestPlanDetectsCycles(t *testing.T) {
	t.Parallel()

	_, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "lint_a", "/d", config.DependencyRef{Plugin: "p", Hook: "lint_b"}),
		instance("p", "lint_b", "/d", config.DependencyRef{Plugin: "p", Hook: "lint_c"}),
		instance("p", "lint_c", "/d", config.DependencyRef{Plugin: "p", Hook: "lint_a"}),
	})
	require.Error(t, err)

	var cycle *scheduler.DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestPlanSelfDependencyAcrossDirectoriesIsNotACycle(t *testing.T) {
	t.Parallel()

	// Two instances of the same (plugin, hook) pair in different directories
	// do not depend on each other.
	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("p", "lint", "/a"),
		instance("p", "lint", "/b"),
	})
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Len(t, phases[0].Instances, 2)
}

func TestPlanDependencyCoversEveryInstanceOfPair(t *testing.T) {
	t.Parallel()

	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("fmt", "format", "/a"),
		instance("fmt", "format", "/b"),
		instance("p", "lint", "/a", config.DependencyRef{Plugin: "fmt", Hook: "format"}),
	})
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, []string{"fmt/format@/a", "fmt/format@/b"}, phaseKeys(phases[0]))
	assert.Equal(t, []string{"p/lint@/a"}, phaseKeys(phases[1]))
}

func TestPlanEmpty(t *testing.T) {
	t.Parallel()

	phases, err := scheduler.Plan(nil)
	require.NoError(t, err)
	assert.Empty(t, phases)
}

func TestPlanEventScenario(t *testing.T) {
	t.Parallel()

	// One plugin with lint and advisory_notes for checkpoints plus a commit
	// hook: lint runs before advisory_notes, each in its own phase.
	phases, err := scheduler.Plan([]*scheduler.Instance{
		instance("quality", "lint", "/repo"),
		instance("quality", "advisory_notes", "/repo"),
	})
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, []string{"quality/lint@/repo"}, phaseKeys(phases[0]))
	assert.Equal(t, []string{"quality/advisory_notes@/repo"}, phaseKeys(phases[1]))
}
