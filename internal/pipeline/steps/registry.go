// Package steps provides stage definitions and dependency validation for the
// trial video pipeline.
package steps

import (
	"fmt"
	"os"
	"sort"

	dbpkg "github.com/jonathan/trial-explainer/internal/db"
	"github.com/jonathan/trial-explainer/internal/runstore"
)

// StageCount is the number of pipeline stages.
const StageCount = 7

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Number       int
	Name         string
	Title        string
	Category     string
	Dependencies []int
	Optional     []int
	// Artifacts lists the paths that prove the stage ran. Any one of them is enough.
	Artifacts func(d *runstore.Dir) []string
}

// StageRegistry holds all stage definitions keyed by stage number
var StageRegistry = map[int]StageDefinition{
	1: {
		Number:    1,
		Name:      dbpkg.StepScript,
		Title:     "Generating video script",
		Category:  dbpkg.StepCategoryPlanning,
		Artifacts: func(d *runstore.Dir) []string { return []string{d.ScriptPath()} },
	},
	2: {
		Number:       2,
		Name:         dbpkg.StepAssets,
		Title:        "Planning visual assets",
		Category:     dbpkg.StepCategoryPlanning,
		Dependencies: []int{1},
		Artifacts:    func(d *runstore.Dir) []string { return []string{d.AssetsPath()} },
	},
	3: {
		Number:       3,
		Name:         dbpkg.StepImages,
		Title:        "Generating images",
		Category:     dbpkg.StepCategoryMedia,
		Dependencies: []int{2},
		Artifacts:    func(d *runstore.Dir) []string { return []string{d.ImagesIndexPath(), d.ImagesDir()} },
	},
	4: {
		Number:       4,
		Name:         dbpkg.StepImagesNoBG,
		Title:        "Removing backgrounds",
		Category:     dbpkg.StepCategoryMedia,
		Dependencies: []int{3},
		Artifacts:    func(d *runstore.Dir) []string { return []string{d.NoBGIndexPath(), d.NoBGDir()} },
	},
	5: {
		Number:       5,
		Name:         dbpkg.StepSlides,
		Title:        "Planning slide layouts",
		Category:     dbpkg.StepCategoryPlanning,
		Dependencies: []int{1, 2},
		Optional:     []int{3, 4},
		Artifacts:    func(d *runstore.Dir) []string { return []string{d.SlidesPath()} },
	},
	6: {
		Number:       6,
		Name:         dbpkg.StepRenderedSlides,
		Title:        "Rendering slides",
		Category:     dbpkg.StepCategoryComposition,
		Dependencies: []int{5},
		Optional:     []int{3, 4},
		Artifacts:    func(d *runstore.Dir) []string { return []string{d.RenderedIndexPath(), d.SlidesDir()} },
	},
	7: {
		Number:       7,
		Name:         dbpkg.StepFinalVideo,
		Title:        "Composing video",
		Category:     dbpkg.StepCategoryComposition,
		Dependencies: []int{1, 5},
		Optional:     []int{6},
		Artifacts:    func(d *runstore.Dir) []string { return []string{d.FinalVideoPath()} },
	},
}

// Lookup returns the definition of stage n.
func Lookup(n int) (StageDefinition, error) {
	def, ok := StageRegistry[n]
	if !ok {
		return StageDefinition{}, fmt.Errorf("unknown stage: %d (valid stages are 1-%d)", n, StageCount)
	}
	return def, nil
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Stage               int
	MissingDependencies []int
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %d is missing outputs of stages %v", e.Stage, e.MissingDependencies)
}

// Satisfied reports whether stage n has run in d, either by the recorded state
// or by its artifacts being present on disk.
func Satisfied(d *runstore.Dir, state *runstore.State, n int) bool {
	if state != nil && state.Completed(n) {
		return true
	}
	def, ok := StageRegistry[n]
	if !ok {
		return false
	}
	for _, path := range def.Artifacts(d) {
		if exists(path) {
			return true
		}
	}
	return false
}

// ValidateDependencies checks that every required dependency of stage n is satisfied
func ValidateDependencies(d *runstore.Dir, state *runstore.State, n int) error {
	def, err := Lookup(n)
	if err != nil {
		return err
	}

	var missing []int
	for _, dep := range def.Dependencies {
		if !Satisfied(d, state, dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Stage: n, MissingDependencies: missing}
	}
	return nil
}

// AvailableStages returns the stages that have not completed and whose dependencies are met
func AvailableStages(d *runstore.Dir, state *runstore.State) []int {
	var available []int
	for _, n := range stageNumbers() {
		if state != nil && state.Completed(n) {
			continue
		}
		if ValidateDependencies(d, state, n) == nil {
			available = append(available, n)
		}
	}
	return available
}

// BlockedStages returns the stages that cannot run yet
func BlockedStages(d *runstore.Dir, state *runstore.State) []int {
	var blocked []int
	for _, n := range stageNumbers() {
		if state != nil && state.Completed(n) {
			continue
		}
		if ValidateDependencies(d, state, n) != nil {
			blocked = append(blocked, n)
		}
	}
	return blocked
}

func stageNumbers() []int {
	nums := make([]int, 0, len(StageRegistry))
	for n := range StageRegistry {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		return err == nil && len(entries) > 0
	}
	return true
}
