// Package forest trains random-forest classifiers.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/opst/trackfab/pkg/train/dataset"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidParams = errors.New("hyperparameters are invalid")

// Params are the hyperparameters of a forest.
type Params struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	Seed            int64 `json:"random_state"`
}

func (p Params) Validate() error {
	if p.NEstimators < 1 {
		return fmt.Errorf("%w: n_estimators should be 1 or more: %d", ErrInvalidParams, p.NEstimators)
	}
	if p.MaxDepth < 1 {
		return fmt.Errorf("%w: max_depth should be 1 or more: %d", ErrInvalidParams, p.MaxDepth)
	}
	if p.MinSamplesSplit < 2 {
		return fmt.Errorf("%w: min_samples_split should be 2 or more: %d", ErrInvalidParams, p.MinSamplesSplit)
	}
	return nil
}

// Node is a binary decision node: rows with feature value at most
// Threshold descend left, others right. Leaves carry Probability
// (the class distribution of their training rows) and no children.
type Node struct {
	Feature     int       `json:"feature"`
	Threshold   float64   `json:"threshold"`
	Left        *Node     `json:"left,omitempty"`
	Right       *Node     `json:"right,omitempty"`
	Probability []float64 `json:"probability,omitempty"`
}

type Tree struct {
	Root *Node `json:"root"`
}

// Forest is a trained random-forest classifier. Its zero value is not
// usable; train one with Train or unmarshal a saved model.
type Forest struct {
	Params  Params   `json:"params"`
	Classes []string `json:"classes"`
	Trees   []*Tree  `json:"trees"`
}

// Train fits a forest on a table: each tree is a CART tree grown on a
// bootstrap sample, splitting on the gini criterion over sqrt(features)
// candidate features per node.
//
// Trees are trained concurrently but deterministically. Tree i seeds its
// randomness from Params.Seed and i, so the same table and params always
// yield the same forest.
func Train(ctx context.Context, d dataset.Table, p Params) (*Forest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if d.Len() == 0 {
		return nil, fmt.Errorf("%w: no rows to fit on", dataset.ErrBroken)
	}
	if len(d.ClassNames) == 0 {
		return nil, fmt.Errorf("%w: no classes", dataset.ErrBroken)
	}

	trees := make([]*Tree, p.NEstimators)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < p.NEstimators; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trees[i] = fitTree(d, p, p.Seed+int64(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Forest{Params: p, Classes: d.ClassNames, Trees: trees}, nil
}

// Probabilities returns, per class, the fraction of trees voting for it.
// x must have the feature count the forest was trained on.
func (f *Forest) Probabilities(x []float64) []float64 {
	votes := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		votes[t.vote(x)]++
	}
	for c := range votes {
		votes[c] /= float64(len(f.Trees))
	}
	return votes
}

// Predict returns the class most trees vote for. Ties go to the lower
// class index.
func (f *Forest) Predict(x []float64) int {
	return argmax(f.Probabilities(x))
}

func (t *Tree) vote(x []float64) int {
	n := t.Root
	for n.Left != nil {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return argmax(n.Probability)
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if values[best] < v {
			best = i
		}
	}
	return best
}

func fitTree(d dataset.Table, p Params, seed int64) *Tree {
	rng := rand.New(rand.NewSource(seed))

	// bootstrap: as many draws as rows, with replacement
	rows := make([]int, d.Len())
	for i := range rows {
		rows[i] = rng.Intn(d.Len())
	}

	nFeatures := len(d.Features[0])
	b := &builder{
		table:     d,
		params:    p,
		rng:       rng,
		nClasses:  len(d.ClassNames),
		nFeatures: nFeatures,
		mtry:      max(1, int(math.Sqrt(float64(nFeatures)))),
	}
	return &Tree{Root: b.grow(rows, 0)}
}

type builder struct {
	table     dataset.Table
	params    Params
	rng       *rand.Rand
	nClasses  int
	nFeatures int
	mtry      int
}

func (b *builder) grow(rows []int, depth int) *Node {
	counts := b.count(rows)
	if depth >= b.params.MaxDepth ||
		len(rows) < b.params.MinSamplesSplit ||
		pure(counts) {
		return leaf(counts, len(rows))
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return leaf(counts, len(rows))
	}

	var left, right []int
	for _, r := range rows {
		if b.table.Features[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.grow(left, depth+1),
		Right:     b.grow(right, depth+1),
	}
}

// bestSplit searches mtry features drawn for this node for the boundary
// with the least weighted gini impurity. ok is false when no feature has
// two distinct values among rows.
func (b *builder) bestSplit(rows []int) (feature int, threshold float64, ok bool) {
	feature = -1
	bestImpurity := math.Inf(1)

	for _, f := range b.rng.Perm(b.nFeatures)[:b.mtry] {
		ordered := make([]int, len(rows))
		copy(ordered, rows)
		sort.Slice(ordered, func(i, j int) bool {
			return b.table.Features[ordered[i]][f] < b.table.Features[ordered[j]][f]
		})

		left := make([]int, b.nClasses)
		right := b.count(ordered)

		for i := 0; i < len(ordered)-1; i++ {
			label := b.table.Labels[ordered[i]]
			left[label]++
			right[label]--

			v := b.table.Features[ordered[i]][f]
			next := b.table.Features[ordered[i+1]][f]
			if v == next {
				continue
			}

			impurity := weightedGini(left, i+1, right, len(ordered)-i-1)
			if impurity < bestImpurity {
				bestImpurity = impurity
				feature = f
				threshold = (v + next) / 2
			}
		}
	}

	return feature, threshold, 0 <= feature
}

func (b *builder) count(rows []int) []int {
	counts := make([]int, b.nClasses)
	for _, r := range rows {
		counts[b.table.Labels[r]]++
	}
	return counts
}

func leaf(counts []int, total int) *Node {
	probability := make([]float64, len(counts))
	for c, n := range counts {
		probability[c] = float64(n) / float64(total)
	}
	return &Node{Feature: -1, Probability: probability}
}

func pure(counts []int) bool {
	seen := false
	for _, n := range counts {
		if n == 0 {
			continue
		}
		if seen {
			return false
		}
		seen = true
	}
	return true
}

func weightedGini(left []int, nLeft int, right []int, nRight int) float64 {
	total := float64(nLeft + nRight)
	return (float64(nLeft)*gini(left, nLeft) + float64(nRight)*gini(right, nRight)) / total
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, n := range counts {
		p := float64(n) / float64(total)
		g -= p * p
	}
	return g
}
