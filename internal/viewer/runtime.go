// Package viewer runs the kitchen and customer sessions. Each session owns
// its API client, push stream and state, and applies every event on a single
// goroutine; slow work runs elsewhere and reports back as events.
package viewer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"coffeenet/internal/models"
	"coffeenet/internal/push"
)

const (
	eventBuffer    = 64
	initialBackoff = 500 * time.Millisecond
	maxNotices     = 5
)

// Stream is a connected push channel.
type Stream interface {
	Next() (push.Envelope, error)
	Close() error
}

// Dialer opens a push stream.
type Dialer func(ctx context.Context, url string) (Stream, error)

// DialPush dials the real websocket channel.
func DialPush(ctx context.Context, url string) (Stream, error) {
	return push.Dial(ctx, url)
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Tests substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Options configure a session. Zero values pick the defaults.
type Options struct {
	Dial           Dialer
	Scheduler      Scheduler
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	Log            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Dial == nil {
		o.Dial = DialPush
	}
	if o.Scheduler == nil {
		o.Scheduler = realScheduler{}
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.Log == nil {
		o.Log = slog.New(slog.NewTextHandler(discard{}, nil))
	}
	return o
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Events produced by the runtime itself.
type (
	pushed struct{ env push.Envelope }
	lost   struct{ err error }
	fatal  struct{ err error }
)

// runtime is the part shared by both sessions: the event queue and the
// push pump that dials, reads and redials on request.
type runtime struct {
	opts    Options
	pushURL func() (string, error)
	events  chan any
	resnap  chan struct{}
	done    chan struct{}
}

func newRuntime(opts Options, pushURL func() (string, error)) runtime {
	r := runtime{
		opts:    opts.withDefaults(),
		pushURL: pushURL,
		events:  make(chan any, eventBuffer),
		resnap:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	// The first connection counts as a requested snapshot.
	r.resnap <- struct{}{}
	return r
}

// post queues an event for the loop. It gives up once the loop has exited.
func (r *runtime) post(ev any) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// requestSnapshot asks the pump to reconnect; a pending request absorbs repeats.
func (r *runtime) requestSnapshot() {
	select {
	case r.resnap <- struct{}{}:
	default:
	}
}

// run drives the loop until ctx ends or handle fails.
func (r *runtime) run(ctx context.Context, handle func(ev any) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(r.done)
	}()
	go r.pump(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			if f, ok := ev.(fatal); ok {
				return f.err
			}
			if err := handle(ev); err != nil {
				return err
			}
		}
	}
}

func (r *runtime) pump(ctx context.Context) {
	log := r.opts.Log
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.resnap:
		}

		stream, err := r.connect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.post(fatal{err: err})
			}
			return
		}
		// Unblock Next when the session ends.
		stop := context.AfterFunc(ctx, func() { stream.Close() })
		for {
			env, err := stream.Next()
			if err != nil {
				stop()
				stream.Close()
				if ctx.Err() == nil {
					log.Warn("push channel lost", "error", err)
					r.post(lost{err: err})
				}
				break
			}
			r.post(pushed{env: env})
		}
	}
}

// connect dials until it succeeds, backing off exponentially up to
// MaxBackoff. Only cancellation and rejected credentials stop it.
func (r *runtime) connect(ctx context.Context) (Stream, error) {
	delay := time.Duration(0)
	for attempt := 0; ; attempt++ {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		url, err := r.pushURL()
		if err != nil {
			return nil, err
		}
		stream, err := r.opts.Dial(ctx, url)
		if err == nil {
			if attempt > 0 {
				r.opts.Log.Info("push channel reconnected", "attempts", attempt+1)
			}
			return stream, nil
		}
		if errors.Is(err, models.ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		r.opts.Log.Warn("failed to connect push channel", "error", err, "attempt", attempt+1)
		delay = nextBackoff(delay, r.opts.MaxBackoff)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	if current <= 0 {
		return initialBackoff
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func appendNotice(notices []string, text string) []string {
	notices = append(notices, text)
	if len(notices) > maxNotices {
		notices = notices[len(notices)-maxNotices:]
	}
	return notices
}
