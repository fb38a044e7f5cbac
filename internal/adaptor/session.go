package adaptor

import (
	"context"
	"errors"
)

// RunSession drives a whole session the way a job host does: start, each
// run in order, stop, and cleanup regardless of the outcome. Cancelling ctx
// kills the engine and unblocks the current wait.
func RunSession(ctx context.Context, lc Lifecycle, initData map[string]any, runs []map[string]any) (err error) {
	bg := context.WithoutCancel(ctx)

	defer func() {
		err = errors.Join(err, lc.OnCleanup(bg))
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = lc.OnCancel(bg)
	})
	defer stop()

	if err := lc.OnStart(ctx, initData); err != nil {
		return err
	}

	for _, run := range runs {
		if err := lc.OnRun(ctx, run); err != nil {
			return err
		}
	}

	return lc.OnStop(ctx)
}
