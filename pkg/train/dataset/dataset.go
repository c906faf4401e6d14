// Package dataset loads and splits labeled feature tables for training.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
)

var ErrBroken = errors.New("dataset is broken")

// Table is a labeled feature matrix. Row i has the feature vector
// Features[i] and the class Labels[i], an index into ClassNames.
type Table struct {
	FeatureNames []string
	ClassNames   []string
	Features     [][]float64
	Labels       []int
}

func (t Table) Len() int {
	return len(t.Features)
}

// Load reads a table from csv. The first record is a header; the last
// column holds the class label and everything before it is a numeric
// feature. Classes are numbered in order of first appearance.
func Load(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return Table{}, fmt.Errorf("%w: cannot read header: %s", ErrBroken, err)
	}
	if len(header) < 2 {
		return Table{}, fmt.Errorf(
			"%w: need at least one feature column and a label column", ErrBroken,
		)
	}

	t := Table{FeatureNames: header[:len(header)-1]}
	classes := map[string]int{}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: %s", ErrBroken, err)
		}

		features := make([]float64, len(record)-1)
		for i, field := range record[:len(record)-1] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return Table{}, fmt.Errorf(
					"%w: line %d: %s is not a number", ErrBroken, line, field,
				)
			}
			features[i] = v
		}

		class := record[len(record)-1]
		label, ok := classes[class]
		if !ok {
			label = len(t.ClassNames)
			classes[class] = label
			t.ClassNames = append(t.ClassNames, class)
		}

		t.Features = append(t.Features, features)
		t.Labels = append(t.Labels, label)
	}

	if t.Len() == 0 {
		return Table{}, fmt.Errorf("%w: no rows", ErrBroken)
	}
	return t, nil
}

const sampleSeed = 42

// Sample generates the builtin dataset: 150 rows over 3 balanced classes
// of 4 features each, shaped like the iris measurements. The same table
// is returned every time.
func Sample() Table {
	rng := rand.New(rand.NewSource(sampleSeed))

	means := [][]float64{
		{5.0, 3.4, 1.5, 0.2},
		{5.9, 2.8, 4.3, 1.3},
		{6.6, 3.0, 5.6, 2.0},
	}
	sds := []float64{0.35, 0.35, 0.35, 0.2}

	t := Table{
		FeatureNames: []string{"sepal_length", "sepal_width", "petal_length", "petal_width"},
		ClassNames:   []string{"setosa", "versicolor", "virginica"},
	}

	for class := range t.ClassNames {
		for i := 0; i < 50; i++ {
			features := make([]float64, len(sds))
			for j := range features {
				v := means[class][j] + rng.NormFloat64()*sds[j]
				// measurements come in 0.1 steps and are never zero
				features[j] = math.Max(0.1, math.Round(v*10)/10)
			}
			t.Features = append(t.Features, features)
			t.Labels = append(t.Labels, class)
		}
	}
	return t
}

// Split partitions rows into train and test, stratified by class: each
// class hands the same fraction of its rows to the test split. The same
// seed always yields the same partition.
func Split(t Table, testSize float64, seed int64) (Table, Table, error) {
	if t.Len() == 0 {
		return Table{}, Table{}, fmt.Errorf("%w: no rows to split", ErrBroken)
	}
	if testSize <= 0 || 1 <= testSize {
		return Table{}, Table{}, fmt.Errorf(
			"test size should be between 0 and 1 (exclusive): %f", testSize,
		)
	}

	rng := rand.New(rand.NewSource(seed))

	byClass := map[int][]int{}
	for i, label := range t.Labels {
		byClass[label] = append(byClass[label], i)
	}

	trainRows := []int{}
	testRows := []int{}
	for class := range t.ClassNames {
		rows := byClass[class]
		if len(rows) == 0 {
			continue
		}
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		nTest := int(math.Round(float64(len(rows)) * testSize))
		if len(rows) <= nTest {
			// keep at least one row per class to train on
			nTest = len(rows) - 1
		}
		testRows = append(testRows, rows[:nTest]...)
		trainRows = append(trainRows, rows[nTest:]...)
	}

	rng.Shuffle(len(trainRows), func(i, j int) { trainRows[i], trainRows[j] = trainRows[j], trainRows[i] })
	rng.Shuffle(len(testRows), func(i, j int) { testRows[i], testRows[j] = testRows[j], testRows[i] })

	return t.take(trainRows), t.take(testRows), nil
}

func (t Table) take(rows []int) Table {
	out := Table{
		FeatureNames: t.FeatureNames,
		ClassNames:   t.ClassNames,
		Features:     make([][]float64, 0, len(rows)),
		Labels:       make([]int, 0, len(rows)),
	}
	for _, i := range rows {
		out.Features = append(out.Features, t.Features[i])
		out.Labels = append(out.Labels, t.Labels[i])
	}
	return out
}
