// Package metrics scores classifier predictions.
package metrics

import (
	"errors"
	"fmt"
	"math"
)

var ErrMismatch = errors.New("predictions do not match labels")

// Epsilon clips predicted probabilities away from 0 and 1 so that
// log loss stays finite.
const Epsilon = 1e-15

// Accuracy is the fraction of predictions matching labels.
func Accuracy(predicted []int, labels []int) (float64, error) {
	if len(predicted) != len(labels) {
		return 0, fmt.Errorf(
			"%w: %d predictions for %d labels", ErrMismatch, len(predicted), len(labels),
		)
	}
	if len(labels) == 0 {
		return 0, fmt.Errorf("%w: nothing to score", ErrMismatch)
	}

	hit := 0
	for i := range labels {
		if predicted[i] == labels[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(labels)), nil
}

// LogLoss is the mean negative log of the probability each row's
// probabilities assign to its true class.
func LogLoss(probabilities [][]float64, labels []int) (float64, error) {
	if len(probabilities) != len(labels) {
		return 0, fmt.Errorf(
			"%w: %d probability rows for %d labels", ErrMismatch, len(probabilities), len(labels),
		)
	}
	if len(labels) == 0 {
		return 0, fmt.Errorf("%w: nothing to score", ErrMismatch)
	}

	total := 0.0
	for i, label := range labels {
		if label < 0 || len(probabilities[i]) <= label {
			return 0, fmt.Errorf(
				"%w: label %d is out of range for %d classes",
				ErrMismatch, label, len(probabilities[i]),
			)
		}
		p := math.Min(math.Max(probabilities[i][label], Epsilon), 1-Epsilon)
		total -= math.Log(p)
	}
	return total / float64(len(labels)), nil
}
