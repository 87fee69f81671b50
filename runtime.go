package gocompositor

import (
	"sync"

	"go.uber.org/multierr"
)

// runParallel runs the given functions to completion and combines their errors.
// When parallel is false they run one after another on the calling goroutine.
func runParallel(parallel bool, fs ...func() error) error {
	errs := make([]error, len(fs))
	if !parallel {
		for i, f := range fs {
			errs[i] = f()
		}
		return multierr.Combine(errs...)
	}

	var wg sync.WaitGroup
	wg.Add(len(fs))
	for i, f := range fs {
		iCopy := i
		fCopy := f
		go func() {
			defer wg.Done()
			errs[iCopy] = fCopy()
		}()
	}
	wg.Wait()
	return multierr.Combine(errs...)
}
