package sweep

import (
	"sort"

	"github.com/opst/trackfab/pkg/train/forest"
	"github.com/opst/trackfab/pkg/utils/combination"
)

// DefaultGrid returns the standard sweep: six hand-picked combinations
// covering small, mid and large forests. Run them in this order.
func DefaultGrid() []forest.Params {
	return []forest.Params{
		{NEstimators: 50, MaxDepth: 3, MinSamplesSplit: 2},
		{NEstimators: 100, MaxDepth: 5, MinSamplesSplit: 2},
		{NEstimators: 150, MaxDepth: 7, MinSamplesSplit: 2},
		{NEstimators: 100, MaxDepth: 5, MinSamplesSplit: 5},
		{NEstimators: 200, MaxDepth: 10, MinSamplesSplit: 2},
		{NEstimators: 100, MaxDepth: 3, MinSamplesSplit: 10},
	}
}

// DemoGrid returns the short grid of the demonstration mode, the first
// three combinations of DefaultGrid.
func DemoGrid() []forest.Params {
	return DefaultGrid()[:3]
}

const (
	axisNEstimators     = "n_estimators"
	axisMaxDepth        = "max_depth"
	axisMinSamplesSplit = "min_samples_split"
)

// GridOf spans the cartesian product of the given axis values.
// Duplicated values on an axis count once. When any axis is empty the
// grid is empty.
//
// The result is ordered by n_estimators, then max_depth, then
// min_samples_split.
func GridOf(nEstimators []int, maxDepths []int, minSamplesSplits []int) []forest.Params {
	combos := combination.MapCartesian(map[string][]int{
		axisNEstimators:     uniq(nEstimators),
		axisMaxDepth:        uniq(maxDepths),
		axisMinSamplesSplit: uniq(minSamplesSplits),
	})

	grid := make([]forest.Params, 0, len(combos))
	for _, c := range combos {
		grid = append(grid, forest.Params{
			NEstimators:     c[axisNEstimators],
			MaxDepth:        c[axisMaxDepth],
			MinSamplesSplit: c[axisMinSamplesSplit],
		})
	}

	// MapCartesian walks a map, so its order varies run to run.
	sort.Slice(grid, func(i, j int) bool {
		if grid[i].NEstimators != grid[j].NEstimators {
			return grid[i].NEstimators < grid[j].NEstimators
		}
		if grid[i].MaxDepth != grid[j].MaxDepth {
			return grid[i].MaxDepth < grid[j].MaxDepth
		}
		return grid[i].MinSamplesSplit < grid[j].MinSamplesSplit
	})
	return grid
}

func uniq(values []int) []int {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	uniqued := sorted[:0]
	for i, v := range sorted {
		if i == 0 || uniqued[len(uniqued)-1] != v {
			uniqued = append(uniqued, v)
		}
	}
	return uniqued
}
