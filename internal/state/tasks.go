package state

import (
	"encoding/json"
	"fmt"
)

// ParseTaskFile decodes TaskFile JSON. A document without a tasks key yields
// an empty TaskFile.
func ParseTaskFile(data []byte) (*TaskFile, error) {
	var tf TaskFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse task file: %w", err)
	}
	return &tf, nil
}

// Complete reports whether a unit of work has no open tasks left. A nil
// TaskFile cannot confirm completion.
func Complete(tf *TaskFile) bool {
	if tf == nil {
		return false
	}
	for _, t := range tf.Tasks {
		if !t.Passes {
			return false
		}
	}
	return true
}

// OpenTasks returns the tasks that have not passed yet, in file order.
func (tf *TaskFile) OpenTasks() []Task {
	if tf == nil {
		return nil
	}
	var open []Task
	for _, t := range tf.Tasks {
		if !t.Passes {
			open = append(open, t)
		}
	}
	return open
}

// Counts returns the number of passing tasks and the total.
func (tf *TaskFile) Counts() (done, total int) {
	if tf == nil {
		return 0, 0
	}
	for _, t := range tf.Tasks {
		if t.Passes {
			done++
		}
	}
	return done, len(tf.Tasks)
}
