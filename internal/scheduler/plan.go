package scheduler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/util"
)

// Phase is a set of instances safe to run concurrently. Phases execute
// strictly in order; every instance of phase N reaches a terminal result
// before phase N+1 starts.
type Phase struct {
	Instances []*Instance

	// Final marks the wildcard stage, scheduled after every phase-ordered
	// instance.
	Final bool
}

// Plan computes the execution plan for the given instances. It resolves
// named dependsOn entries to instances, rejects unsatisfiable and cyclic
// configurations before anything executes, and returns phases in execution
// order with wildcard stages last.
func Plan(instances []*Instance) ([]Phase, error) {
	if err := linkDependencies(instances); err != nil {
		return nil, err
	}

	if err := checkForCycles(instances); err != nil {
		return nil, err
	}

	var ordered, final []*Instance

	for _, instance := range instances {
		if instance.Wildcard() {
			final = append(final, instance)
		} else {
			ordered = append(ordered, instance)
		}
	}

	phases := groupByLevel(ordered, orderedLevel, false)
	phases = append(phases, groupByLevel(final, finalLevel, true)...)

	return phases, nil
}

// linkDependencies resolves each instance's named dependsOn refs to the
// instances of the referenced (plugin, hook) pair. Optional refs to pairs
// absent from the run are dropped; required refs to absent pairs are a
// configuration error.
func linkDependencies(instances []*Instance) error {
	byPair := map[string][]*Instance{}
	for _, instance := range instances {
		byPair[instance.PairKey()] = append(byPair[instance.PairKey()], instance)
	}

	for _, instance := range instances {
		instance.dependsOn = nil

		for _, ref := range instance.Config.DependsOn {
			if ref.IsWildcard() {
				continue
			}

			targets, ok := byPair[ref.Plugin+"/"+ref.Hook]
			if !ok {
				if ref.Optional {
					continue
				}

				return errors.New(&MissingDependencyError{
					Instance:   instance.Key(),
					Dependency: ref.Plugin + "/" + ref.Hook,
				})
			}

			for _, target := range targets {
				if target != instance {
					instance.dependsOn = append(instance.dependsOn, target)
				}
			}

			if !instance.Wildcard() {
				for _, target := range targets {
					if target.Wildcard() {
						return errors.Errorf(
							"hook %s cannot depend on %s: the latter runs after everything",
							instance.Key(), target.Key(),
						)
					}
				}
			}
		}
	}

	return nil
}

// orderedLevel places a phase-ordered instance: never earlier than its
// name-derived phase, and strictly after every named dependency.
func orderedLevel(instance *Instance, levelOf func(*Instance) int) int {
	level := NamePhase(instance.Config.HookName)

	for _, dep := range instance.dependsOn {
		if depLevel := levelOf(dep) + 1; depLevel > level {
			level = depLevel
		}
	}

	return level
}

// finalLevel places a wildcard instance within the final stage: stage 0
// unless it names another wildcard instance as a dependency. Named
// dependencies on phase-ordered instances are already satisfied by the
// stage boundary.
func finalLevel(instance *Instance, levelOf func(*Instance) int) int {
	level := 0

	for _, dep := range instance.dependsOn {
		if !dep.Wildcard() {
			continue
		}

		if depLevel := levelOf(dep) + 1; depLevel > level {
			level = depLevel
		}
	}

	return level
}

func groupByLevel(instances []*Instance, level func(*Instance, func(*Instance) int) int, final bool) []Phase {
	memo := map[*Instance]int{}

	var levelOf func(*Instance) int

	levelOf = func(instance *Instance) int {
		if cached, ok := memo[instance]; ok {
			return cached
		}

		// Mark before recursing so a cycle that slipped past detection
		// terminates instead of recursing forever.
		memo[instance] = 0
		memo[instance] = level(instance, levelOf)

		return memo[instance]
	}

	byLevel := map[int][]*Instance{}
	for _, instance := range instances {
		byLevel[levelOf(instance)] = append(byLevel[levelOf(instance)], instance)
	}

	levels := make([]int, 0, len(byLevel))
	for l := range byLevel {
		levels = append(levels, l)
	}

	slices.Sort(levels)

	phases := make([]Phase, 0, len(levels))

	for _, l := range levels {
		members := byLevel[l]
		slices.SortFunc(members, func(a, b *Instance) int {
			return strings.Compare(a.Key(), b.Key())
		})

		phases = append(phases, Phase{Instances: members, Final: final})
	}

	return phases
}

// checkForCycles runs a depth-first search over the named dependency edges
// and fails with the offending path if a cycle exists. Detection happens
// before execution; a cycle is a configuration error, never a hang.
func checkForCycles(instances []*Instance) error {
	visited := []string{}
	current := []string{}

	var visit func(*Instance) error

	visit = func(instance *Instance) error {
		if util.ListContainsElement(visited, instance.Key()) {
			return nil
		}

		if util.ListContainsElement(current, instance.Key()) {
			return errors.New(&DependencyCycleError{Path: append(slices.Clone(current), instance.Key())})
		}

		current = append(current, instance.Key())

		for _, dep := range instance.dependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}

		visited = append(visited, instance.Key())
		current = util.RemoveElementFromList(current, instance.Key())

		return nil
	}

	for _, instance := range instances {
		if err := visit(instance); err != nil {
			return err
		}
	}

	return nil
}

// DependencyCycleError reports a cycle in the dependsOn graph.
type DependencyCycleError struct {
	Path []string
}

func (err *DependencyCycleError) Error() string {
	return "dependency cycle between hooks: " + strings.Join(err.Path, " -> ")
}

// MissingDependencyError reports a required dependsOn entry whose target has
// no instance in this run.
type MissingDependencyError struct {
	Instance   string
	Dependency string
}

func (err *MissingDependencyError) Error() string {
	return fmt.Sprintf("hook %s depends on %s, which has no instance in this run (mark the dependency optional if that is expected)", err.Instance, err.Dependency)
}
