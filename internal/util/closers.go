package util

import (
	"io"
)

// CleanupTasks collects teardown steps for something that is being constructed, so that a constructor
// can release whatever it already acquired if a later step fails. Tasks run in reverse order of addition.
type CleanupTasks []func()

func (t *CleanupTasks) AddCloser(c io.Closer) {
	*t = append(*t, func() { _ = c.Close() })
}

func (t *CleanupTasks) AddFunc(f func()) {
	*t = append(*t, f)
}

// Clear forgets all tasks; call it once construction has succeeded.
func (t *CleanupTasks) Clear() {
	*t = nil
}

func (t *CleanupTasks) Run() {
	for i := len(*t) - 1; i >= 0; i-- {
		(*t)[i]()
	}
	*t = nil
}
