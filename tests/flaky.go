package tests

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// FlakyT provides retry mechanisms to test.
type FlakyT struct {
	t      *testing.T
	failed bool
	msgs   []string
	cls    []func()
}

var _ require.TestingT = (*FlakyT)(nil)

// Errorf registers an error message for the current attempt.
func (ft *FlakyT) Errorf(format string, args ...interface{}) {
	ft.failed = true
	ft.msgs = append(ft.msgs, fmt.Sprintf(format, args...))
}

// FailNow indicates to fail the attempt.
func (ft *FlakyT) FailNow() {
	ft.failed = true
	runtime.Goexit()
}

// Cleanup registers a cleanup function.
func (ft *FlakyT) Cleanup(cls func()) {
	ft.cls = append([]func(){cls}, ft.cls...)
}

var (
	numRetries = 3
	retryDelay = time.Second * 2
)

// RunFlaky runs a test depending on external infrastructure with retries.
func RunFlaky(t *testing.T, f func(ft *FlakyT)) {
	t.Helper()
	var last *FlakyT
	for i := 0; i < numRetries; i++ {
		var wg sync.WaitGroup
		wg.Add(1)
		ft := &FlakyT{t: t}
		go func() {
			defer wg.Done()
			f(ft)
		}()
		wg.Wait()
		for _, f := range ft.cls {
			f()
		}
		if !ft.failed {
			return
		}
		last = ft
		t.Logf("test %s attempt %d/%d failed, retrying...", t.Name(), i+1, numRetries)
		time.Sleep(retryDelay)
	}
	for _, m := range last.msgs {
		t.Log(m)
	}
	t.Fatalf("test failed after %d retries", numRetries)
}
