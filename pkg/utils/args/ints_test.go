package args_test

import (
	"testing"

	"github.com/opst/trackfab/pkg/utils/args"
	"github.com/opst/trackfab/pkg/utils/cmp"
)

func TestInts(t *testing.T) {
	for name, testcase := range map[string]struct {
		given    []string
		expected []int
		wantErr  bool
	}{
		"a single value":          {given: []string{"3"}, expected: []int{3}},
		"comma-separated values":  {given: []string{"50,100"}, expected: []int{50, 100}},
		"repeated flags":          {given: []string{"2", "4,8"}, expected: []int{2, 4, 8}},
		"spaces around commas":    {given: []string{" 5 , 7 "}, expected: []int{5, 7}},
		"empty items are skipped": {given: []string{"5,,7"}, expected: []int{5, 7}},
		"not an integer":          {given: []string{"three"}, wantErr: true},
	} {
		t.Run(name, func(t *testing.T) {
			testee := &args.Ints{}
			var err error
			for _, g := range testcase.given {
				if err = testee.Set(g); err != nil {
					break
				}
			}
			if testcase.wantErr {
				if err == nil {
					t.Fatal("no error occured")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if actual := []int(*testee); !cmp.SliceEq(actual, testcase.expected) {
				t.Errorf(
					"parsed values are not equal (actual, expected): %v, %v",
					actual, testcase.expected,
				)
			}
		})
	}
}
