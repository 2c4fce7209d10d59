// Package guard composes the admission and resilience stages around a call:
// rate limiter, then bulkhead, then circuit breaker, then retry, then the
// call itself. Each stage short-circuits the rest on rejection, so an
// admission rejection never reaches the breaker's failure counting.
package guard

import (
	"context"

	"github.com/amalgam8/vigil/breaker"
	"github.com/amalgam8/vigil/bulkhead"
	"github.com/amalgam8/vigil/ratelimit"
	"github.com/amalgam8/vigil/retry"
)

// Operation is a call protected by a Guard.
type Operation func(ctx context.Context) error

// Policy names the parameters of each stage. A nil stage is left out of the
// chain.
type Policy struct {

	// Name identifies the guard and is inherited by unnamed stages.
	Name string

	// RateLimit configures the throughput admission stage.
	RateLimit *ratelimit.Config

	// Bulkhead configures the concurrency admission stage.
	Bulkhead *bulkhead.Config

	// Breaker configures the circuit breaker stage.
	Breaker *breaker.Config

	// Retry configures the retry stage wrapped inside the breaker.
	Retry *retry.Policy
}

// Guard runs operations through the configured stage chain.
type Guard struct {
	name     string
	limiter  *ratelimit.Limiter
	bulkhead *bulkhead.Bulkhead
	breaker  *breaker.Breaker
	retrier  *retry.Executor
}

// New builds a Guard from the policy. Stages without configuration are
// omitted; an empty policy yields a pass-through guard.
func New(policy Policy) (*Guard, error) {
	if policy.Name == "" {
		policy.Name = "default"
	}
	g := &Guard{name: policy.Name}

	if policy.RateLimit != nil {
		conf := *policy.RateLimit
		if conf.Name == "" {
			conf.Name = policy.Name
		}
		limiter, err := ratelimit.New(conf)
		if err != nil {
			return nil, err
		}
		g.limiter = limiter
	}
	if policy.Bulkhead != nil {
		conf := *policy.Bulkhead
		if conf.Name == "" {
			conf.Name = policy.Name
		}
		bh, err := bulkhead.New(conf)
		if err != nil {
			return nil, err
		}
		g.bulkhead = bh
	}
	if policy.Breaker != nil {
		conf := *policy.Breaker
		if conf.Name == "" {
			conf.Name = policy.Name
		}
		br, err := breaker.New(conf)
		if err != nil {
			return nil, err
		}
		g.breaker = br
	}
	if policy.Retry != nil {
		retrier, err := retry.New(*policy.Retry)
		if err != nil {
			return nil, err
		}
		g.retrier = retrier
	}

	return g, nil
}

// Name returns the guard's identifier.
func (g *Guard) Name() string {
	return g.name
}

// Breaker returns the breaker stage, or nil if the guard has none.
func (g *Guard) Breaker() *breaker.Breaker {
	return g.breaker
}

// Bulkhead returns the bulkhead stage, or nil if the guard has none.
func (g *Guard) Bulkhead() *bulkhead.Bulkhead {
	return g.bulkhead
}

// Limiter returns the rate limiting stage, or nil if the guard has none.
func (g *Guard) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// Execute runs op through the stage chain. The first rejecting stage's
// fault is returned without invoking the stages, or the operation, behind
// it.
func (g *Guard) Execute(ctx context.Context, op Operation) error {
	chain := func(ctx context.Context) error { return op(ctx) }

	if g.retrier != nil {
		next := chain
		chain = func(ctx context.Context) error { return g.retrier.Execute(ctx, next) }
	}
	if g.breaker != nil {
		next := chain
		chain = func(ctx context.Context) error { return g.breaker.Execute(ctx, next) }
	}
	if g.bulkhead != nil {
		next := chain
		chain = func(ctx context.Context) error { return g.bulkhead.Execute(ctx, next) }
	}
	if g.limiter != nil {
		next := chain
		chain = func(ctx context.Context) error { return g.limiter.Execute(ctx, next) }
	}

	return chain(ctx)
}
