package args

import (
	"fmt"
	"strconv"
	"strings"
)

// Ints is a comma-separated list of integers, for commandline flags.
//
// The flag can be repeated, and each repetition appends to the list.
type Ints []int

func (is *Ints) String() string {
	if is == nil {
		return ""
	}
	ss := make([]string, len(*is))
	for i, v := range *is {
		ss[i] = strconv.Itoa(v)
	}
	return strings.Join(ss, ",")
}

// Set appends values parsed from a comma-separated string.
//
// Compliant with the flag.Value interface.
func (is *Ints) Set(value string) error {
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not an integer: %s", s)
		}
		*is = append(*is, v)
	}
	return nil
}
