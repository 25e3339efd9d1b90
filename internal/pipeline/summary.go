package pipeline

import (
	"github.com/IshaanNene/scrapeoracle/internal/types"
)

var terminalStates = []types.ItemState{
	types.StatePersisted,
	types.StateSkipped,
	types.StateFetchFailed,
	types.StateExtractFailed,
	types.StateOracleFailed,
}

// Summary counts the items of a run by terminal state.
type Summary struct {
	Total  int
	States map[types.ItemState]int
}

func newSummary() Summary {
	return Summary{States: make(map[types.ItemState]int)}
}

// Count returns how many items ended in state.
func (s Summary) Count(state types.ItemState) int {
	return s.States[state]
}

// Merge folds o into s.
func (s *Summary) Merge(o Summary) {
	if s.States == nil {
		s.States = make(map[types.ItemState]int)
	}
	s.Total += o.Total
	for k, v := range o.States {
		s.States[k] += v
	}
}

func (s *Summary) add(state types.ItemState) {
	s.Total++
	s.States[state]++
}

func (s Summary) logArgs() []any {
	args := []any{"total", s.Total}
	for _, st := range terminalStates {
		args = append(args, string(st), s.States[st])
	}
	return args
}
