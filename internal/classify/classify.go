// Package classify turns engine log lines into progress, completion and error
// events using declarative per-handler rule tables.
package classify

import (
	"regexp"
	"strconv"
	"sync/atomic"
)

// Kind is the category a rule reports.
type Kind int

// Rule categories. Higher values take precedence when one line matches
// rules of several kinds.
const (
	None Kind = iota
	Progress
	Complete
	Error
)

func (k Kind) String() string {
	switch k {
	case Progress:
		return "progress"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return "none"
	}
}

// Ruleset is the ordered rule table of one handler variant. Progress
// patterns must capture the numeric value in their first group.
type Ruleset struct {
	Name     string
	Progress []*regexp.Regexp
	Complete []*regexp.Regexp
	Error    []*regexp.Regexp
}

// Result is the classification of a single line.
type Result struct {
	Kind     Kind
	Progress float64
	Line     string
	// Match is the text matched by the winning rule.
	Match string
}

// Classify evaluates line against rs. Each category is tested independently
// in list order; when several categories match, Error wins over Complete and
// Complete over Progress. A progress match whose capture is not a number is
// ignored.
func Classify(rs *Ruleset, line string) Result {
	res := Result{Kind: None, Line: line}
	if rs == nil {
		return res
	}

	if m := firstMatch(rs.Error, line); m != nil {
		res.Kind = Error
		res.Match = m[0]

		return res
	}

	if m := firstMatch(rs.Complete, line); m != nil {
		res.Kind = Complete
		res.Match = m[0]

		return res
	}

	for _, p := range rs.Progress {
		m := p.FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}

		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}

		res.Kind = Progress
		res.Progress = v
		res.Match = m[0]

		return res
	}

	return res
}

func firstMatch(patterns []*regexp.Regexp, line string) []string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(line); m != nil {
			return m
		}
	}

	return nil
}

// Sink receives classified events. Implementations run on the output reading
// goroutine and must not block.
type Sink interface {
	OnProgress(progress float64)
	OnComplete(line string)
	OnError(line string)
}

// Classifier applies the active ruleset to lines and forwards events to a
// sink. The ruleset can be swapped while lines are being processed.
type Classifier struct {
	rules atomic.Pointer[Ruleset]
	sink  Sink
}

// New creates a classifier with an initial ruleset.
func New(rs *Ruleset, sink Sink) *Classifier {
	c := &Classifier{sink: sink}
	c.rules.Store(rs)

	return c
}

// Use replaces the active ruleset.
func (c *Classifier) Use(rs *Ruleset) {
	c.rules.Store(rs)
}

// HandleLine classifies line with the active ruleset and reports the result.
func (c *Classifier) HandleLine(line string) Result {
	res := Classify(c.rules.Load(), line)
	if c.sink == nil {
		return res
	}

	switch res.Kind {
	case Progress:
		c.sink.OnProgress(res.Progress)
	case Complete:
		c.sink.OnComplete(res.Match)
	case Error:
		c.sink.OnError(res.Match)
	case None:
	}

	return res
}
