package settlement

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veribond/internal/domain"
	"veribond/internal/fault"
)

func testPolicy() domain.Policy {
	return domain.Policy{
		MinStake:         1,
		SlashPercent:     50,
		Split:            domain.SlashSplit{RewardBps: 5000, ProtocolBps: 5000},
		BonusRateBps:     500,
		BonusCap:         50,
		Resolver:         "admin",
		LivenessSeconds:  300,
		BondCurrency:     "USDC",
		ProtocolTreasury: "protocol",
	}
}

func TestIncorrectClaimSlashesAndSplits(t *testing.T) {
	res, err := Compute(Input{Stake: 100, Predicted: true, Outcome: false}, testPolicy())
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, int64(50), res.ReturnAmount)
	assert.Equal(t, int64(50), res.SlashAmount)
	assert.Equal(t, int64(25), res.RewardShare)
	assert.Equal(t, int64(25), res.ProtocolShare)
	assert.Equal(t, int64(0), res.MarketShare)
	assert.Equal(t, int64(0), res.BonusAmount)
	assert.Equal(t, int64(25), res.ReserveDelta())
}

func TestCorrectClaimBonusLimitedByReserve(t *testing.T) {
	tests := []struct {
		name    string
		stake   int64
		reserve int64
		cap     int64
		want    int64
	}{
		{name: "rate", stake: 200, reserve: 30, cap: 50, want: 10},
		{name: "cap", stake: 2000, reserve: 1000, cap: 50, want: 50},
		{name: "reserve", stake: 2000, reserve: 7, cap: 50, want: 7},
		{name: "empty reserve", stake: 2000, reserve: 0, cap: 50, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPolicy()
			p.BonusCap = tt.cap
			res, err := Compute(Input{Stake: tt.stake, Predicted: false, Outcome: false, ReserveBefore: tt.reserve}, p)
			require.NoError(t, err)
			assert.True(t, res.Correct)
			assert.Equal(t, tt.stake, res.ReturnAmount)
			assert.Equal(t, tt.want, res.BonusAmount)
			assert.Equal(t, tt.stake+tt.want, res.Payout())
			assert.Equal(t, -tt.want, res.ReserveDelta())
		})
	}
}

func TestRoundingDustGoesToMarket(t *testing.T) {
	p := testPolicy()
	p.SlashPercent = 33
	p.Split = domain.SlashSplit{RewardBps: 3333, ProtocolBps: 3333, MarketBps: 3334}
	res, err := Compute(Input{Stake: 101, Predicted: true, Outcome: false}, p)
	require.NoError(t, err)
	assert.Equal(t, int64(33), res.SlashAmount)
	assert.Equal(t, int64(10), res.RewardShare)
	assert.Equal(t, int64(10), res.ProtocolShare)
	assert.Equal(t, int64(13), res.MarketShare)
}

func TestLargeStakeDoesNotOverflow(t *testing.T) {
	p := testPolicy()
	p.SlashPercent = 100
	p.Split = domain.SlashSplit{RewardBps: 9999, ProtocolBps: 1}
	res, err := Compute(Input{Stake: math.MaxInt64, Predicted: true, Outcome: false}, p)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), res.SlashAmount)
	assert.Equal(t, res.SlashAmount, res.RewardShare+res.ProtocolShare+res.MarketShare)
	assert.Positive(t, res.RewardShare)
}

func TestValidatePolicy(t *testing.T) {
	bad := []func(p *domain.Policy){
		func(p *domain.Policy) { p.Split.MarketBps = 1 },
		func(p *domain.Policy) { p.SlashPercent = 101 },
		func(p *domain.Policy) { p.MinStake = 0 },
		func(p *domain.Policy) { p.BonusRateBps = 10001 },
		func(p *domain.Policy) { p.BonusCap = -1 },
		func(p *domain.Policy) { p.Split = domain.SlashSplit{RewardBps: 12000, ProtocolBps: -2000} },
	}
	for i, mutate := range bad {
		p := testPolicy()
		mutate(&p)
		err := ValidatePolicy(p)
		assert.ErrorIs(t, err, fault.ErrInvalidPolicy, "case %d", i)
	}
	require.NoError(t, ValidatePolicy(testPolicy()))
}

func TestComputeRejectsNonPositiveStake(t *testing.T) {
	_, err := Compute(Input{Stake: 0}, testPolicy())
	require.ErrorIs(t, err, fault.ErrInvalidInput)
}

func genSplit() gopter.Gen {
	return gopter.CombineGens(gen.Int64Range(0, 10000), gen.Int64Range(0, 10000)).
		Map(func(vs []interface{}) domain.SlashSplit {
			a, b := vs[0].(int64), vs[1].(int64)
			if a > b {
				a, b = b, a
			}
			return domain.SlashSplit{RewardBps: a, ProtocolBps: b - a, MarketBps: 10000 - b}
		})
}

// Property: the three shares always add up to the slash and value is conserved.
func TestSlashConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("shares sum to slash and stake is conserved", prop.ForAll(
		func(stake, pct int64, split domain.SlashSplit) bool {
			p := testPolicy()
			p.SlashPercent = pct
			p.Split = split
			res, err := Compute(Input{Stake: stake, Predicted: true, Outcome: false}, p)
			if err != nil {
				return false
			}
			return res.RewardShare+res.ProtocolShare+res.MarketShare == res.SlashAmount &&
				res.ReturnAmount+res.SlashAmount == stake &&
				res.MarketShare >= 0 && res.ReturnAmount >= 0
		},
		gen.Int64Range(1, math.MaxInt64/2),
		gen.Int64Range(0, 100),
		genSplit(),
	))

	properties.TestingRun(t)
}

// Property: a bonus never exceeds the cap or the reserve.
func TestBonusBounded(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("bonus within cap and reserve", prop.ForAll(
		func(stake, rate, cap, reserve int64) bool {
			p := testPolicy()
			p.BonusRateBps = rate
			p.BonusCap = cap
			res, err := Compute(Input{Stake: stake, Predicted: true, Outcome: true, ReserveBefore: reserve}, p)
			if err != nil {
				return false
			}
			return res.BonusAmount >= 0 && res.BonusAmount <= cap && res.BonusAmount <= reserve &&
				res.ReturnAmount == stake && res.SlashAmount == 0
		},
		gen.Int64Range(1, 1<<50),
		gen.Int64Range(0, 10000),
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}
