package cluster

import (
	"strings"
)

// One term of a label selector query.
type SelectorElement interface {
	// render this term as a query fragment for the label `key`.
	QueryString(key string) string

	Equal(SelectorElement) bool
}

// EqualityBased selects labels by (in)equality of their value.
//
// "value", "=value" and "==value" mean `key = value`.
// "!=value" means `key != value`.
type EqualityBased string

func (eb EqualityBased) operand() (op string, value string) {
	value = string(eb)
	if v, ok := strings.CutPrefix(value, "!="); ok {
		return "!=", v
	}
	if v, ok := strings.CutPrefix(value, "=="); ok {
		return "=", v
	}
	if v, ok := strings.CutPrefix(value, "="); ok {
		return "=", v
	}
	return "=", value
}

func (eb EqualityBased) QueryString(key string) string {
	op, value := eb.operand()
	return key + op + value
}

func (eb EqualityBased) Equal(other SelectorElement) bool {
	switch o := other.(type) {
	case EqualityBased:
		aop, avalue := eb.operand()
		bop, bvalue := o.operand()
		return aop == bop && avalue == bvalue
	default:
		return false
	}
}

// LabelSelector maps label keys to selector terms.
type LabelSelector map[string]SelectorElement

// QueryString renders the whole selector, comma-separated.
func (ls LabelSelector) QueryString() string {
	terms := make([]string, 0, len(ls))
	for key, el := range ls {
		terms = append(terms, el.QueryString(key))
	}
	return strings.Join(terms, ",")
}

// LabelsToSelector converts matchLabels into an equality-based LabelSelector.
func LabelsToSelector(labels map[string]string) LabelSelector {
	ls := LabelSelector{}
	for key, value := range labels {
		ls[key] = EqualityBased(value)
	}
	return ls
}
