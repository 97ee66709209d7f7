package tui

import (
	"context"
	"sync"
)

var (
	abortMu  sync.RWMutex
	abortCtx context.Context
)

// SetAbortContext registers the run context. Every App created afterwards
// stops when it is canceled, so SIGINT ends an open prompt.
func SetAbortContext(ctx context.Context) {
	abortMu.Lock()
	abortCtx = ctx
	abortMu.Unlock()
}

func getAbortContext() context.Context {
	abortMu.RLock()
	defer abortMu.RUnlock()
	return abortCtx
}

func bindAbortContext(app *App) {
	ctx := getAbortContext()
	if ctx == nil {
		return
	}
	context.AfterFunc(ctx, app.Stop)
}
