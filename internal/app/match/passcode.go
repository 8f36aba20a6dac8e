package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app/lifecycle"
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Allocator builds fixed-width decimal passcodes: random high digits
// followed by the creation time in milliseconds, truncated to the low digits.
// Codes can repeat; the store only refuses a code held by an OPEN gathering.
type Allocator struct {
	RandomDigits int
	TimeDigits   int

	now    func() time.Time
	random func(n int) int
}

func NewAllocator(randomDigits, timeDigits int) *Allocator {
	return &Allocator{
		RandomDigits: randomDigits,
		TimeDigits:   timeDigits,
		now:          time.Now,
		random:       rand.IntN,
	}
}

func (a *Allocator) Width() int { return a.RandomDigits + a.TimeDigits }

func (a *Allocator) Next() string {
	high := a.random(pow10(a.RandomDigits))
	low := a.now().UnixMilli() % int64(pow10(a.TimeDigits))
	return fmt.Sprintf("%0*d%0*d", a.RandomDigits, high, a.TimeDigits, low)
}

// Valid reports whether code has the allocator's format.
func (a *Allocator) Valid(code string) bool {
	if len(code) != a.Width() {
		return false
	}
	return strings.Trim(code, "0123456789") == ""
}

func pow10(n int) int {
	v := 1
	for range n {
		v *= 10
	}
	return v
}

// Passcode lets players share a gathering by exchanging its code out of band.
// When two open gatherings ever hold the same code, which one a join
// resolves to is unspecified.
type Passcode struct {
	ctl      *lifecycle.Controller
	store    core.GatheringStore
	alloc    *Allocator
	attempts int
}

func NewPasscode(ctl *lifecycle.Controller, store core.GatheringStore, alloc *Allocator, attempts int) *Passcode {
	if attempts < 1 {
		attempts = 1
	}
	return &Passcode{ctl: ctl, store: store, alloc: alloc, attempts: attempts}
}

func (p *Passcode) Type() domain.StrategyType { return domain.StrategyPasscode }

// Match joins by code when one is given and creates a gathering otherwise.
func (p *Passcode) Match(ctx context.Context, req Request) (Result, error) {
	if req.Passcode != "" {
		g, err := p.JoinByPasscode(ctx, req.Definition, req.Passcode, req.User)
		if err != nil {
			return Result{}, err
		}
		return Result{Gathering: g, Done: true}, nil
	}
	g, err := p.CreateGathering(ctx, req.Definition, req.User)
	if err != nil {
		return Result{}, err
	}
	return Result{Gathering: g, Created: true, Done: true}, nil
}

func (p *Passcode) CreateGathering(ctx context.Context, def *domain.Definition, user domain.UserID) (*domain.Gathering, error) {
	for attempt := 0; attempt < p.attempts; attempt++ {
		code := p.alloc.Next()
		g, err := p.ctl.Create(ctx, lifecycle.CreateParams{Definition: def, Creator: user, Passcode: code})
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, domain.ErrPasscodeInUse) {
			return nil, err
		}
		log.Warn().
			Str("module", "app.match").
			Str("definition", def.Name).
			Int("attempt", attempt+1).
			Msg("passcode collision")
	}
	return nil, fmt.Errorf("%w: after %d attempts", domain.ErrPasscodeExhausted, p.attempts)
}

func (p *Passcode) JoinByPasscode(ctx context.Context, def *domain.Definition, code string, user domain.UserID) (*domain.Gathering, error) {
	if !p.alloc.Valid(code) {
		return nil, fmt.Errorf("%w: passcode must be %d digits", domain.ErrInvalidArgument, p.alloc.Width())
	}
	g, err := p.store.FindByPasscode(ctx, def.Name, code)
	if err != nil {
		return nil, err
	}
	return p.ctl.Join(ctx, g.ID, user)
}
