package evaluate

import (
	"fmt"
	"sort"
)

// Indicator names accepted by Compute, in canonical order.
var Indicators = []string{
	"accuracy",
	"f1_macro",
	"f1_micro",
	"precision_macro",
	"precision_micro",
	"recall_macro",
	"recall_micro",
}

// IsIndicator reports whether name is a known indicator.
func IsIndicator(name string) bool {
	for _, ind := range Indicators {
		if ind == name {
			return true
		}
	}
	return false
}

// Score is one computed indicator.
type Score struct {
	Name  string
	Value float64
}

// classCounts holds per-label true positives, false positives and false negatives.
type classCounts struct {
	tp, fp, fn int
}

type confusion struct {
	labels  []string
	counts  map[string]*classCounts
	correct int
	total   int
}

func newConfusion(truth, pred []string) confusion {
	c := confusion{counts: make(map[string]*classCounts), total: len(truth)}
	get := func(label string) *classCounts {
		cc, ok := c.counts[label]
		if !ok {
			cc = &classCounts{}
			c.counts[label] = cc
			c.labels = append(c.labels, label)
		}
		return cc
	}
	for i := range truth {
		t, p := truth[i], pred[i]
		tc, pc := get(t), get(p)
		if t == p {
			tc.tp++
			c.correct++
			continue
		}
		tc.fn++
		pc.fp++
	}
	sort.Strings(c.labels)
	return c
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c confusion) accuracy() float64 {
	return ratio(c.correct, c.total)
}

// macro averages a per-label metric over every label seen in truth or predictions.
func (c confusion) macro(metric func(classCounts) float64) float64 {
	if len(c.labels) == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range c.labels {
		sum += metric(*c.counts[l])
	}
	return sum / float64(len(c.labels))
}

// micro pools counts across labels before applying the metric.
func (c confusion) micro(metric func(classCounts) float64) float64 {
	var pooled classCounts
	for _, l := range c.labels {
		cc := c.counts[l]
		pooled.tp += cc.tp
		pooled.fp += cc.fp
		pooled.fn += cc.fn
	}
	return metric(pooled)
}

func precision(cc classCounts) float64 { return ratio(cc.tp, cc.tp+cc.fp) }
func recall(cc classCounts) float64    { return ratio(cc.tp, cc.tp+cc.fn) }
func f1(cc classCounts) float64        { return ratio(2*cc.tp, 2*cc.tp+cc.fp+cc.fn) }

// Compute evaluates the named indicators, in the order given.
func Compute(truth, pred []string, indicators []string) ([]Score, error) {
	if len(truth) != len(pred) {
		return nil, fmt.Errorf("label count mismatch: %d true labels, %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return nil, fmt.Errorf("no labels to evaluate")
	}

	c := newConfusion(truth, pred)
	scores := make([]Score, 0, len(indicators))
	for _, name := range indicators {
		var v float64
		switch name {
		case "accuracy":
			v = c.accuracy()
		case "f1_macro":
			v = c.macro(f1)
		case "f1_micro":
			v = c.micro(f1)
		case "precision_macro":
			v = c.macro(precision)
		case "precision_micro":
			v = c.micro(precision)
		case "recall_macro":
			v = c.macro(recall)
		case "recall_micro":
			v = c.micro(recall)
		default:
			return nil, fmt.Errorf("unknown indicator %q (valid: %v)", name, Indicators)
		}
		scores = append(scores, Score{Name: name, Value: v})
	}
	return scores, nil
}
