// Package radiosim stands in for a pair of LoRa radios so two loratun
// instances can talk on one machine. Pair joins two pseudo-terminals through
// a lossy channel, Echo sends every byte back to where it came from.
package radiosim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/rectcircle/loratun/internal/loratun/link"
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options - impairments of the simulated air, applied per received chunk
type Options struct {
	// Loss - probability that a chunk never arrives
	Loss float64
	// Corrupt - probability that one bit of a chunk is flipped
	Corrupt float64
	// Seed - random source seed, 0 picks one from the clock
	Seed int64
}

// Validate - probabilities in [0, 1]
func (o Options) Validate() error {
	if o.Loss < 0 || o.Loss > 1 {
		return fmt.Errorf("loss %v not in [0, 1]", o.Loss)
	}
	if o.Corrupt < 0 || o.Corrupt > 1 {
		return fmt.Errorf("corrupt %v not in [0, 1]", o.Corrupt)
	}
	return nil
}

// Air - the channel between two radios, shared by both directions
type Air struct {
	opts Options

	mu  sync.Mutex
	rnd *rand.Rand

	Forwarded atomic.Int64 // bytes delivered
	Lost      atomic.Int64 // chunks lost
	Corrupted atomic.Int64 // chunks with a flipped bit
}

// NewAir - channel with the impairments of opts
func NewAir(opts Options, seed int64) *Air {
	if opts.Seed != 0 {
		seed = opts.Seed
	}
	return &Air{opts: opts, rnd: rand.New(rand.NewSource(seed))}
}

// transmit - what arrives on the other side when chunk is sent, nil if nothing does
func (a *Air) transmit(chunk []byte) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opts.Loss > 0 && a.rnd.Float64() < a.opts.Loss {
		a.Lost.Add(1)
		return nil
	}
	out := make([]byte, len(chunk))
	copy(out, chunk)
	if a.opts.Corrupt > 0 && a.rnd.Float64() < a.opts.Corrupt {
		bit := a.rnd.Intn(len(out) * 8)
		out[bit/8] ^= 1 << (bit % 8)
		a.Corrupted.Add(1)
	}
	a.Forwarded.Add(int64(len(out)))
	return out
}

// Shuttle - carry bytes between a and b through air until ctx is done or a side goes away
func Shuttle(ctx context.Context, a, b link.Link, air *Air) error {
	g, ctx := errgroup.WithContext(ctx)
	warn := rate.NewLimiter(rate.Every(variable.StatsInterval), 1)
	g.Go(func() error { return forward(ctx, a, b, air, warn) })
	g.Go(func() error { return forward(ctx, b, a, air, warn) })
	return g.Wait()
}

func forward(ctx context.Context, from, to link.Link, air *Air, warn *rate.Limiter) error {
	buffer := make([]byte, variable.SerialReadChunk)
	for ctx.Err() == nil {
		n, err := from.Read(buffer)
		if n > 0 {
			if chunk := air.transmit(buffer[:n]); chunk != nil {
				if _, werr := to.Write(chunk); werr != nil {
					return fmt.Errorf("write %s: %w", to.Name(), werr)
				}
			}
		}
		if err != nil {
			if link.IsDisconnect(err) {
				return fmt.Errorf("read %s: %w", from.Name(), err)
			}
			if warn.Allow() {
				logrus.WithError(err).Warnf("read from %s", from.Name())
			}
		}
	}
	return nil
}

// Echo - write everything read from l back to l until ctx is done
func Echo(ctx context.Context, l link.Link) error {
	buffer := make([]byte, variable.SerialReadChunk)
	var total int64
	defer func() {
		logrus.WithFields(logrus.Fields{"port": l.Name(), "bytes": total}).Info("echo stopped")
	}()
	for ctx.Err() == nil {
		n, err := l.Read(buffer)
		if n > 0 {
			if _, werr := l.Write(buffer[:n]); werr != nil {
				return fmt.Errorf("write %s: %w", l.Name(), werr)
			}
			total += int64(n)
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", l.Name(), err)
		}
	}
	return nil
}

// Pair - two pseudo-terminals whose peers behave like a pair of radios
type Pair struct {
	A, B *link.PTYLink
	Air  *Air
}

// OpenPair - allocate both pseudo-terminals
func OpenPair(opts Options, seed int64) (*Pair, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	a, err := link.OpenPTY()
	if err != nil {
		return nil, err
	}
	b, err := link.OpenPTY()
	if err != nil {
		a.Close()
		return nil, err
	}
	return &Pair{A: a, B: b, Air: NewAir(opts, seed)}, nil
}

// Run - shuttle until ctx is done, then close both terminals
func (p *Pair) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"a":       p.A.PeerName(),
		"b":       p.B.PeerName(),
		"loss":    p.Air.opts.Loss,
		"corrupt": p.Air.opts.Corrupt,
	}).Info("radio pair ready")
	err := Shuttle(ctx, p.A, p.B, p.Air)
	p.Close()
	logrus.WithFields(logrus.Fields{
		"bytes":     p.Air.Forwarded.Load(),
		"lost":      p.Air.Lost.Load(),
		"corrupted": p.Air.Corrupted.Load(),
	}).Info("radio pair stopped")
	return err
}

// Close - close both terminals
func (p *Pair) Close() error {
	err := p.A.Close()
	if berr := p.B.Close(); err == nil {
		err = berr
	}
	return err
}
