package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/traceroot-ai/traceroot-sdk/pkg/logging"
)

// RotateFunc is invoked when a refresh yields a different telemetry
// destination (endpoint or hash) than the previous credentials.
type RotateFunc func(Credentials)

// Refresher renews credentials on a fixed interval in the background.
type Refresher struct {
	manager   *Manager
	interval  time.Duration
	onRotate  RotateFunc
	logger    logging.Adapter
	newTicker func(time.Duration) ticker

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	lastHash string
	lastAddr string
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewRefresher constructs a background refresher over the supplied manager.
func NewRefresher(manager *Manager, interval time.Duration, onRotate RotateFunc, logger logging.Adapter) (*Refresher, error) {
	if manager == nil {
		return nil, ewrap.New("credential manager is required")
	}

	if interval <= 0 {
		return nil, ewrap.New("interval must be greater than zero")
	}

	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	return &Refresher{
		manager:   manager,
		interval:  interval,
		onRotate:  onRotate,
		logger:    logger,
		newTicker: defaultTickerFactory,
	}, nil
}

// Start begins refreshing until the context is canceled or Stop is invoked.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ewrap.New("credential refresher already running")
	}

	if cached := r.manager.Cached(); cached != nil {
		r.lastHash = cached.Hash
		r.lastAddr = cached.OTLPEndpoint
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)

	go r.run(runCtx)

	return nil
}

// Stop stops the refresher and waits for an in-flight refresh to finish.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	running := r.running
	r.mu.Unlock()

	if !running {
		return nil
	}

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ewrap.Wrap(ctx.Err(), "stop credential refresher")
	case <-done:
		return nil
	}
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()
	defer r.markStopped()

	tick := r.newTicker(r.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C():
			r.refreshOnce(ctx)
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	creds, err := r.manager.Get(ctx)
	if err != nil {
		r.logger.Error(ctx, err, "background credential refresh failed")

		return
	}

	r.mu.Lock()
	rotated := creds.Hash != r.lastHash || creds.OTLPEndpoint != r.lastAddr
	r.lastHash = creds.Hash
	r.lastAddr = creds.OTLPEndpoint
	onRotate := r.onRotate
	r.mu.Unlock()

	if rotated && onRotate != nil {
		onRotate(*creds)
	}
}

func (r *Refresher) markStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	r.cancel = nil
}

func defaultTickerFactory(interval time.Duration) ticker {
	return &stdTicker{inner: time.NewTicker(interval)}
}

type stdTicker struct {
	inner *time.Ticker
}

func (t *stdTicker) C() <-chan time.Time {
	return t.inner.C
}

func (t *stdTicker) Stop() {
	t.inner.Stop()
}
