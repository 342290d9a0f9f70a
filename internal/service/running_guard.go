package service

import (
	"context"
	"sync"
	"time"
)

// ActiveRun identifies the run of an import job that is in flight.
type ActiveRun struct {
	RunID     string    `json:"runId"`
	JobID     string    `json:"jobId"`
	StartedAt time.Time `json:"startedAt"`
}

// RunGuard admits one run per import job and lets shutdown wait for the
// runs in flight. The zero value is ready to use.
type RunGuard struct {
	mu     sync.Mutex
	active map[string]ActiveRun
	wg     sync.WaitGroup
}

// Claim registers run for its job. When the job already has a run in
// flight, Claim returns that run and false.
func (g *RunGuard) Claim(run ActiveRun) (ActiveRun, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, busy := g.active[run.JobID]; busy {
		return cur, false
	}
	if g.active == nil {
		g.active = make(map[string]ActiveRun)
	}
	g.active[run.JobID] = run
	g.wg.Add(1)
	return run, true
}

// Release ends a run admitted by Claim. Releasing a run that is not the
// job's active one does nothing.
func (g *RunGuard) Release(run ActiveRun) {
	g.mu.Lock()
	cur, ok := g.active[run.JobID]
	if ok && cur.RunID == run.RunID {
		delete(g.active, run.JobID)
	}
	g.mu.Unlock()
	if ok && cur.RunID == run.RunID {
		g.wg.Done()
	}
}

// Active returns the run of jobID in flight, if any.
func (g *RunGuard) Active(jobID string) (ActiveRun, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.active[jobID]
	return r, ok
}

// Wait returns once no run is in flight or ctx is done.
func (g *RunGuard) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
