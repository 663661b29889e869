package trader

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// StakePolicy sizes the next contract. Settle must be called once per
// settled trade so recovery policies can track the loss streak.
type StakePolicy interface {
	Next() decimal.Decimal
	Settle(won bool)
}

// FlatPolicy stakes the same amount on every trade.
type FlatPolicy struct {
	stake decimal.Decimal
}

// NewFlatPolicy creates a flat staking policy.
func NewFlatPolicy(stake decimal.Decimal) *FlatPolicy {
	return &FlatPolicy{stake: stake}
}

func (p *FlatPolicy) Next() decimal.Decimal { return p.stake }
func (p *FlatPolicy) Settle(won bool)       {}

// MultiplierPolicy multiplies the stake after every loss to recover the
// drawdown, resetting on a win or when the loss streak hits maxStreak.
type MultiplierPolicy struct {
	mu         sync.Mutex
	base       decimal.Decimal
	current    decimal.Decimal
	multiplier decimal.Decimal
	streak     int
	maxStreak  int
}

// NewMultiplierPolicy creates a loss-recovery policy. maxStreak caps the
// doubling run; past it the stake resets to base.
func NewMultiplierPolicy(base, multiplier decimal.Decimal, maxStreak int) *MultiplierPolicy {
	if maxStreak <= 0 {
		maxStreak = 4
	}
	return &MultiplierPolicy{
		base:       base,
		current:    base,
		multiplier: multiplier,
		maxStreak:  maxStreak,
	}
}

func (p *MultiplierPolicy) Next() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *MultiplierPolicy) Settle(won bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if won {
		p.streak = 0
		p.current = p.base
		return
	}
	p.streak++
	if p.streak >= p.maxStreak {
		p.streak = 0
		p.current = p.base
		return
	}
	p.current = p.current.Mul(p.multiplier)
}

// LossStreak returns the current consecutive-loss count.
func (p *MultiplierPolicy) LossStreak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streak
}

// NewPolicy builds a stake policy from config strings.
func NewPolicy(kind, stake, multiplier string, maxStreak int) (StakePolicy, error) {
	base, err := decimal.NewFromString(stake)
	if err != nil {
		return nil, fmt.Errorf("parse stake %q: %w", stake, err)
	}
	if base.Sign() <= 0 {
		return nil, fmt.Errorf("stake must be positive, got %s", base)
	}

	switch kind {
	case "", "flat":
		return NewFlatPolicy(base), nil
	case "multiplier":
		mult, err := decimal.NewFromString(multiplier)
		if err != nil {
			return nil, fmt.Errorf("parse multiplier %q: %w", multiplier, err)
		}
		if mult.LessThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("multiplier must exceed 1, got %s", mult)
		}
		return NewMultiplierPolicy(base, mult, maxStreak), nil
	default:
		return nil, fmt.Errorf("unknown stake policy %q", kind)
	}
}
