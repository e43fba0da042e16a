package wsbroker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/machine"
	"golang.org/x/time/rate"
)

// watchPoller owns one machine.Watch's polling goroutine: it paces
// reads with a rate.Limiter built from the watch's (clamped) interval
// and emits memory:update frames only when the read bytes' hash
// changes, per spec.md §4.11.
//
// Grounded on the teacher's health monitor's background-ticker
// pattern, with the ticker replaced by golang.org/x/time/rate so the
// poll cadence is expressed the same way the teacher paces JWT rate
// limiting (jwt_handler.go), not a bespoke timer.
type watchPoller struct {
	client  *client
	watch   *machine.Watch
	limiter *rate.Limiter
	cancel  context.CancelFunc
}

func newWatchPoller(c *client, w *machine.Watch) *watchPoller {
	limiter := rate.NewLimiter(rate.Every(w.Interval), 1)
	// rate.NewLimiter starts with a full token bucket, so the first
	// Wait would return immediately; drain it here so even the first
	// poll waits out the clamped interval, per scenario S3.
	limiter.Allow()
	return &watchPoller{
		client:  c,
		watch:   w,
		limiter: limiter,
	}
}

func (p *watchPoller) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

func (p *watchPoller) stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *watchPoller) run(ctx context.Context) {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		p.poll(ctx)
	}
}

func (p *watchPoller) poll(ctx context.Context) {
	if !p.watch.TryBeginPoll() {
		return
	}
	defer p.watch.EndPoll()

	if p.watch.IsSuspended() {
		return
	}

	be, err := p.client.broker.holder.Get()
	if err != nil {
		return
	}

	data, err := be.ReadMemory(ctx, p.watch.Address, p.watch.Size)
	if err != nil {
		p.client.logger.WithError(err).WithFields(logging.Fields{"watch_id": p.watch.ID}).Warn("memory watch poll failed")
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if !p.watch.ShouldEmit(hash) {
		return
	}

	p.client.sendJSONWithBinary(map[string]interface{}{
		"type":     msgMemoryUpdate,
		"id":       p.watch.ID,
		"address":  p.watch.Address.String(),
		"size":     p.watch.Size,
		"hash":     hash,
		"encoding": "binary",
	}, data)
}
