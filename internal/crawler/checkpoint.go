package crawler

import (
	"fmt"

	"github.com/nao1215/crawlkit/internal/checkpoint"
	"github.com/nao1215/crawlkit/internal/filter"
	"github.com/nao1215/crawlkit/internal/model"
)

// spiderCheckpointName is the blob name of the spider's own state.
const spiderCheckpointName = "Spider"

// Stash writes the spider and every checkpointable filter to dir. The
// spider must not be running and nothing may be in flight.
//
// Filter blobs are written before the spider blob, so a crash while
// stashing leaves either a complete new checkpoint or an old spider blob
// next to newer filter blobs; the filters then know a superset of the
// identities the old frontier implies, which only costs re-fetches.
func (s *Spider) Stash(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.frontier.inFlightCount() > 0 {
		return ErrInFlight
	}

	for _, c := range filter.Components(s.filter) {
		if err := checkpoint.Stash(dir, c); err != nil {
			return err
		}
	}
	if err := checkpoint.Stash(dir, spiderComponent{s}); err != nil {
		return err
	}

	s.logger.Info("checkpoint stashed",
		"crawl_id", s.crawlID,
		"dir", dir,
		"frontier", s.frontier.len(),
	)
	return nil
}

// Recover replaces the spider and filter state with the checkpoint in
// dir. Nothing changes unless every blob is valid.
func (s *Spider) Recover(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StatePaused:
	case StateRunning:
		return ErrRunning
	default:
		return fmt.Errorf("%w: cannot recover into a %s spider", ErrInvalidState, s.state)
	}

	components := append(filter.Components(s.filter), spiderComponent{s})
	commit, err := checkpoint.PrepareAll(dir, components...)
	if err != nil {
		return err
	}
	commit()

	s.logger.Info("checkpoint recovered",
		"crawl_id", s.crawlID,
		"dir", dir,
		"state", s.state.String(),
		"frontier", s.frontier.len(),
	)
	return nil
}

// CanRecover reports whether dir holds a blob for the spider and for
// every checkpointable filter.
func (s *Spider) CanRecover(dir string) bool {
	if !checkpoint.CanRecover(dir, spiderComponent{s}) {
		return false
	}
	for _, c := range filter.Components(s.filter) {
		if !checkpoint.CanRecover(dir, c) {
			return false
		}
	}
	return true
}

// spiderComponent checkpoints a Spider. Its methods expect the caller to
// hold the spider's mutex.
type spiderComponent struct {
	s *Spider
}

func (c spiderComponent) CheckpointName() string {
	return spiderCheckpointName
}

func (c spiderComponent) CheckpointFields() []string {
	return []string{"crawl_id", "state", "frontier", "stats"}
}

func (c spiderComponent) EncodeCheckpoint(enc *checkpoint.Encoder) error {
	queued := c.s.frontier.snapshot()
	frontier := make([]model.RequestState, 0, len(queued))
	for _, req := range queued {
		st, err := req.State()
		if err != nil {
			return fmt.Errorf("encode frontier request %s: %w", req, err)
		}
		frontier = append(frontier, st)
	}

	if err := enc.Encode("crawl_id", c.s.crawlID); err != nil {
		return err
	}
	if err := enc.Encode("state", c.s.state.String()); err != nil {
		return err
	}
	if err := enc.Encode("frontier", frontier); err != nil {
		return err
	}
	return enc.Encode("stats", c.s.stats)
}

func (c spiderComponent) DecodeCheckpoint(dec *checkpoint.Decoder) (func(), error) {
	var (
		crawlID   string
		stateName string
		states    []model.RequestState
		stats     Stats
	)
	if err := dec.Decode("crawl_id", &crawlID); err != nil {
		return nil, err
	}
	if err := dec.Decode("state", &stateName); err != nil {
		return nil, err
	}
	if err := dec.Decode("frontier", &states); err != nil {
		return nil, err
	}
	if err := dec.Decode("stats", &stats); err != nil {
		return nil, err
	}

	if crawlID == "" {
		return nil, fmt.Errorf("%w: empty crawl id", checkpoint.ErrSchemaMismatch)
	}
	state, err := ParseState(stateName)
	if err != nil {
		return nil, err
	}
	if state == StateRunning {
		return nil, fmt.Errorf("%w: stashed while running", ErrInvalidState)
	}

	queued := make([]*model.Request, 0, len(states))
	for _, st := range states {
		req, err := model.RequestFromState(st)
		if err != nil {
			return nil, err
		}
		queued = append(queued, req)
	}

	return func() {
		c.s.crawlID = crawlID
		c.s.state = state
		c.s.stats = stats
		c.s.frontier.restore(queued)
	}, nil
}
