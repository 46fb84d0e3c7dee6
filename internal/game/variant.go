package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"guessrounds/internal/config"
)

// Variant is one game mode: a fixed outcome domain plus round timing. The
// number-pick mode draws from 1..10; the head-to-head duel mode from {1,10}.
// Both run on the same engine.
type Variant struct {
	Name          string
	Domain        []int
	RoundDuration time.Duration
	StartDelay    time.Duration
	CreationLead  time.Duration
	EntryFee      decimal.Decimal
}

const (
	defaultRoundDuration = 60 * time.Second
	defaultStartDelay    = 10 * time.Second
	defaultCreationLead  = 15 * time.Second
)

// Defaults returns the two shipped variants.
func Defaults() []Variant {
	pick := make([]int, 0, 10)
	for v := 1; v <= 10; v++ {
		pick = append(pick, v)
	}
	return []Variant{
		{
			Name:          "pick10",
			Domain:        pick,
			RoundDuration: defaultRoundDuration,
			StartDelay:    defaultStartDelay,
			CreationLead:  defaultCreationLead,
		},
		{
			Name:          "duel",
			Domain:        []int{1, 10},
			RoundDuration: defaultRoundDuration,
			StartDelay:    defaultStartDelay,
			CreationLead:  defaultCreationLead,
		},
	}
}

// FromConfig builds variants from configuration, falling back to Defaults
// when none are configured.
func FromConfig(cfg config.GameConfig) ([]Variant, error) {
	if len(cfg.Variants) == 0 {
		return Defaults(), nil
	}
	out := make([]Variant, 0, len(cfg.Variants))
	seen := map[string]struct{}{}
	for _, vc := range cfg.Variants {
		name := strings.TrimSpace(vc.Name)
		if name == "" {
			return nil, fmt.Errorf("game variant missing name")
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate game variant %q", name)
		}
		seen[name] = struct{}{}
		if len(vc.OutcomeValues) < 2 {
			return nil, fmt.Errorf("game variant %q needs at least 2 outcome values", name)
		}
		v := Variant{
			Name:          name,
			Domain:        append([]int(nil), vc.OutcomeValues...),
			RoundDuration: vc.RoundDuration,
			StartDelay:    vc.StartDelay,
			CreationLead:  vc.CreationLead,
		}
		if v.RoundDuration <= 0 {
			v.RoundDuration = defaultRoundDuration
		}
		if v.StartDelay <= 0 {
			v.StartDelay = defaultStartDelay
		}
		if v.CreationLead <= 0 {
			v.CreationLead = defaultCreationLead
		}
		if fee := strings.TrimSpace(vc.EntryFee); fee != "" {
			d, err := decimal.NewFromString(fee)
			if err != nil {
				return nil, fmt.Errorf("game variant %q: bad entry_fee: %w", name, err)
			}
			v.EntryFee = d
		}
		out = append(out, v)
	}
	return out, nil
}

// Contains reports whether value is a member of the variant's outcome domain.
func (v Variant) Contains(value int) bool {
	for _, d := range v.Domain {
		if d == value {
			return true
		}
	}
	return false
}

// Draw picks one outcome uniformly at random from the domain.
func (v Variant) Draw() (int, error) {
	if len(v.Domain) == 0 {
		return 0, fmt.Errorf("variant %q has an empty outcome domain", v.Name)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(v.Domain))))
	if err != nil {
		return 0, err
	}
	return v.Domain[n.Int64()], nil
}
