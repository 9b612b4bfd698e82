// Package perfstats accumulates timings of the tracker's pipeline stages
package perfstats

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
	Max     time.Duration
}

func (a *TimeAccumulator) Reset() {
	*a = TimeAccumulator{}
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
	a.Max = max(a.Max, v)
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Stages keeps one TimeAccumulator per named pipeline stage.
// Stage names are reported in the order they were first seen.
type Stages struct {
	lock  sync.Mutex
	order []string
	acc   map[string]*TimeAccumulator
}

func NewStages() *Stages {
	return &Stages{
		acc: map[string]*TimeAccumulator{},
	}
}

func (s *Stages) Add(stage string, d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	a := s.acc[stage]
	if a == nil {
		a = &TimeAccumulator{}
		s.acc[stage] = a
		s.order = append(s.order, stage)
	}
	a.AddSample(d)
}

// Start returns a function that records the elapsed time when called.
// Typical use is "defer stages.Start("score")()".
func (s *Stages) Start(stage string) func() {
	start := time.Now()
	return func() {
		s.Add(stage, time.Since(start))
	}
}

// Get returns a copy of the accumulator for stage
func (s *Stages) Get(stage string) TimeAccumulator {
	s.lock.Lock()
	defer s.lock.Unlock()
	if a := s.acc[stage]; a != nil {
		return *a
	}
	return TimeAccumulator{}
}

func (s *Stages) Names() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.order...)
}

// Summary formats one line per stage, eg "score: n=12 avg=3.1ms max=4.0ms"
func (s *Stages) Summary() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	lines := []string{}
	for _, name := range s.order {
		a := s.acc[name]
		lines = append(lines, fmt.Sprintf("%v: n=%v avg=%v max=%v", name, a.Samples, a.Average().Round(time.Microsecond), a.Max.Round(time.Microsecond)))
	}
	return strings.Join(lines, "\n")
}
