package workflow

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadTasks reads a batch of tasks from a JSON file: a top-level array of
// task objects. Every task is validated; an invalid entry fails the whole
// load so a typo cannot silently drop a task.
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}

	for i, task := range tasks {
		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("task %d in %s: %w", i, path, err)
		}
	}
	return tasks, nil
}
