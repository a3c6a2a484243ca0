// Package restore replays journal history into a live store for several
// disjoint sets of mailboxes at once.
package restore

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

// Group is one unit of restore: the mailboxes in Remap are replayed under
// their new ids. A nil Remap restores every mailbox unchanged and must be
// the only group.
type Group struct {
	Name  string
	Remap map[int32]int32
}

// Request describes a restore run. Commits stamped in [StartTime, EndTime)
// are replayed; a zero EndTime means no upper bound.
type Request struct {
	Files     []string
	Groups    []Group
	StartTime int64
	EndTime   int64
	Options   redo.PlayerOptions
}

// GroupResult is the outcome of one group.
type GroupResult struct {
	Name           string
	Stats          redo.Stats
	ConflictRemaps map[int32]int32
	Err            error
}

// Restorer runs restore groups on a bounded worker pool, one player per group.
type Restorer struct {
	reg     *redo.Registry
	workers int
	logger  *logger.Logger
}

func NewRestorer(reg *redo.Registry, workers int, log *logger.Logger) *Restorer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Restorer{reg: reg, workers: workers, logger: log}
}

// Validate rejects groups that would touch the same mailbox.
func Validate(groups []Group) error {
	if len(groups) > 1 {
		for _, g := range groups {
			if g.Remap == nil {
				return errors.Wrapf(errors.ErrOverlappingRemap, "group %s restores every mailbox", g.Name)
			}
		}
	}
	sources := make(map[int32]string)
	targets := make(map[int32]string)
	for _, g := range groups {
		for from, to := range g.Remap {
			if other, ok := sources[from]; ok {
				return errors.Wrapf(errors.ErrOverlappingRemap, "mailbox %d in groups %s and %s", from, other, g.Name)
			}
			if other, ok := targets[to]; ok {
				return errors.Wrapf(errors.ErrOverlappingRemap, "target mailbox %d in groups %s and %s", to, other, g.Name)
			}
			sources[from] = g.Name
			targets[to] = g.Name
		}
	}
	return nil
}

// Restore replays req.Files for every group and waits for all of them. The
// returned error is the first group failure; every group still runs to
// completion.
func (r *Restorer) Restore(ctx context.Context, req Request) ([]GroupResult, error) {
	if len(req.Groups) == 0 {
		return nil, nil
	}
	if err := Validate(req.Groups); err != nil {
		return nil, err
	}
	if req.EndTime == 0 {
		req.EndTime = math.MaxInt64
	}

	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return nil, errors.Wrap(err, "create restore pool")
	}
	defer pool.Release()

	results := make([]GroupResult, len(req.Groups))
	var wg sync.WaitGroup
	for i, g := range req.Groups {
		i, g := i, g
		results[i].Name = g.Name
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					results[i].Err = fmt.Errorf("restore group %s panicked: %v", g.Name, v)
				}
			}()
			results[i] = r.runGroup(ctx, req, g)
		})
		if err != nil {
			results[i].Err = errors.Wrapf(err, "submit group %s", g.Name)
			wg.Done()
		}
	}
	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			return results, res.Err
		}
	}
	return results, nil
}

func (r *Restorer) runGroup(ctx context.Context, req Request, g Group) GroupResult {
	res := GroupResult{Name: g.Name}
	log := r.logger.Named(g.Name)

	var remap map[int32]int32
	if g.Remap != nil {
		remap = make(map[int32]int32, len(g.Remap))
		for k, v := range g.Remap {
			remap[k] = v
		}
	}

	p := redo.NewPlayer(r.reg, req.Options, log)
	defer p.Shutdown()
	for _, path := range req.Files {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		if err := p.ScanLog(ctx, path, true, remap, req.StartTime, req.EndTime, math.MaxInt64); err != nil {
			res.Err = errors.Wrapf(err, "group %s: %s", g.Name, path)
			break
		}
	}

	res.Stats = p.Stats()
	res.ConflictRemaps = p.MailboxRemap()
	if res.Err != nil {
		log.Error("Restore failed: %v", res.Err)
	} else {
		log.Info("Restore finished: %s", res.Stats)
	}
	return res
}
