package forest_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/opst/trackfab/pkg/train/dataset"
	"github.com/opst/trackfab/pkg/train/forest"
	"github.com/opst/trackfab/pkg/utils/try"
)

func TestParamsValidate(t *testing.T) {
	for name, testcase := range map[string]struct {
		params forest.Params
		valid  bool
	}{
		"accepts the default grid values": {
			params: forest.Params{NEstimators: 100, MaxDepth: 5, MinSamplesSplit: 2},
			valid:  true,
		},
		"accepts the smallest allowed values": {
			params: forest.Params{NEstimators: 1, MaxDepth: 1, MinSamplesSplit: 2},
			valid:  true,
		},
		"rejects zero trees": {
			params: forest.Params{NEstimators: 0, MaxDepth: 5, MinSamplesSplit: 2},
		},
		"rejects zero depth": {
			params: forest.Params{NEstimators: 100, MaxDepth: 0, MinSamplesSplit: 2},
		},
		"rejects min_samples_split below 2": {
			params: forest.Params{NEstimators: 100, MaxDepth: 5, MinSamplesSplit: 1},
		},
	} {
		t.Run(name, func(t *testing.T) {
			err := testcase.params.Validate()
			if testcase.valid {
				if err != nil {
					t.Errorf("unexpected error: %s", err)
				}
			} else if !errors.Is(err, forest.ErrInvalidParams) {
				t.Errorf("error is not ErrInvalidParams: %s", err)
			}
		})
	}
}

// stripes is a tiny table a stump can separate: class is decided by
// whether the first feature exceeds 1.
func stripes() dataset.Table {
	return dataset.Table{
		FeatureNames: []string{"x", "noise"},
		ClassNames:   []string{"lo", "hi"},
		Features: [][]float64{
			{0.1, 0.5}, {0.3, 0.9}, {0.5, 0.1}, {0.7, 0.7}, {0.9, 0.3},
			{1.1, 0.6}, {1.3, 0.2}, {1.5, 0.8}, {1.7, 0.4}, {1.9, 0.9},
		},
		Labels: []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1},
	}
}

func TestTrain(t *testing.T) {
	ctx := context.Background()

	t.Run("it separates a separable table", func(t *testing.T) {
		table := stripes()
		params := forest.Params{NEstimators: 20, MaxDepth: 3, MinSamplesSplit: 2, Seed: 42}

		f := try.To(forest.Train(ctx, table, params)).OrFatal(t)

		if len(f.Trees) != params.NEstimators {
			t.Errorf(
				"unmatch: tree count: (actual, expected) = (%d, %d)",
				len(f.Trees), params.NEstimators,
			)
		}
		if !reflect.DeepEqual(f.Classes, table.ClassNames) {
			t.Errorf(
				"unmatch: classes: (actual, expected) = (%v, %v)",
				f.Classes, table.ClassNames,
			)
		}
		for i := range table.Features {
			if got := f.Predict(table.Features[i]); got != table.Labels[i] {
				t.Errorf(
					"unmatch: prediction for row %d: (actual, expected) = (%d, %d)",
					i, got, table.Labels[i],
				)
			}
		}
	})

	t.Run("it is deterministic for a fixed seed", func(t *testing.T) {
		table := dataset.Sample()
		params := forest.Params{NEstimators: 10, MaxDepth: 4, MinSamplesSplit: 2, Seed: 42}

		a := try.To(forest.Train(ctx, table, params)).OrFatal(t)
		b := try.To(forest.Train(ctx, table, params)).OrFatal(t)

		if !reflect.DeepEqual(a, b) {
			t.Error("two trainings with the same seed differ")
		}
	})

	t.Run("probabilities are a distribution over the classes", func(t *testing.T) {
		table := dataset.Sample()
		params := forest.Params{NEstimators: 15, MaxDepth: 5, MinSamplesSplit: 2, Seed: 42}

		f := try.To(forest.Train(ctx, table, params)).OrFatal(t)

		for i := range table.Features {
			proba := f.Probabilities(table.Features[i])
			if len(proba) != len(table.ClassNames) {
				t.Fatalf(
					"unmatch: probability length: (actual, expected) = (%d, %d)",
					len(proba), len(table.ClassNames),
				)
			}
			total := 0.0
			for _, p := range proba {
				if p < 0 {
					t.Errorf("probability out of range: %f", p)
				}
				total += p
			}
			if 1e-9 < math.Abs(total-1) {
				t.Errorf("probabilities do not sum to 1: %f", total)
			}
		}
	})

	t.Run("it generalizes on a held-out split", func(t *testing.T) {
		train, test, err := dataset.Split(dataset.Sample(), 0.2, 42)
		if err != nil {
			t.Fatal(err)
		}
		params := forest.Params{NEstimators: 50, MaxDepth: 5, MinSamplesSplit: 2, Seed: 42}

		f := try.To(forest.Train(ctx, train, params)).OrFatal(t)

		hit := 0
		for i := range test.Features {
			if f.Predict(test.Features[i]) == test.Labels[i] {
				hit++
			}
		}
		if accuracy := float64(hit) / float64(test.Len()); accuracy < 0.8 {
			t.Errorf("accuracy on held-out rows is too low: %f", accuracy)
		}
	})

	t.Run("it rejects invalid hyperparameters", func(t *testing.T) {
		_, err := forest.Train(ctx, stripes(), forest.Params{})
		if !errors.Is(err, forest.ErrInvalidParams) {
			t.Errorf("error is not ErrInvalidParams: %s", err)
		}
	})

	t.Run("it rejects an empty table", func(t *testing.T) {
		params := forest.Params{NEstimators: 5, MaxDepth: 3, MinSamplesSplit: 2}
		_, err := forest.Train(ctx, dataset.Table{ClassNames: []string{"a"}}, params)
		if !errors.Is(err, dataset.ErrBroken) {
			t.Errorf("error is not dataset.ErrBroken: %s", err)
		}
	})

	t.Run("it stops when the context is canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		params := forest.Params{NEstimators: 100, MaxDepth: 5, MinSamplesSplit: 2, Seed: 42}
		if _, err := forest.Train(canceled, dataset.Sample(), params); err == nil {
			t.Error("no error occured")
		}
	})
}

func TestForestJSON(t *testing.T) {
	ctx := context.Background()
	table := stripes()
	params := forest.Params{NEstimators: 10, MaxDepth: 3, MinSamplesSplit: 2, Seed: 42}

	f := try.To(forest.Train(ctx, table, params)).OrFatal(t)

	buf := try.To(json.Marshal(f)).OrFatal(t)
	restored := new(forest.Forest)
	if err := json.Unmarshal(buf, restored); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(restored.Params, f.Params) {
		t.Errorf(
			"unmatch: params: (actual, expected) = (%+v, %+v)",
			restored.Params, f.Params,
		)
	}
	for i := range table.Features {
		if got, want := restored.Predict(table.Features[i]), f.Predict(table.Features[i]); got != want {
			t.Errorf(
				"unmatch: prediction of restored model for row %d: (actual, expected) = (%d, %d)",
				i, got, want,
			)
		}
	}
}
