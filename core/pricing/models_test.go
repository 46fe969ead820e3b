package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan_FinalAmountCents(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		pct    int
		want   int64
	}{
		{name: "no promotion", amount: 1999, pct: 0, want: 1999},
		{name: "negative promotion ignored", amount: 1999, pct: -5, want: 1999},
		{name: "round down", amount: 999, pct: 15, want: 849},
		{name: "round half up", amount: 1250, pct: 10, want: 1125},
		{name: "half cent up", amount: 15, pct: 10, want: 14},
		{name: "full promotion", amount: 5000, pct: 100, want: 0},
		{name: "zero amount", amount: 0, pct: 50, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Plan{AmountCents: tt.amount, PromotionPercent: tt.pct}
			assert.Equal(t, tt.want, p.FinalAmountCents())
		})
	}
}

func TestPlan_IsRecurring(t *testing.T) {
	assert.True(t, Plan{Interval: IntervalMonth}.IsRecurring())
	assert.True(t, Plan{Interval: IntervalYear}.IsRecurring())
	assert.False(t, Plan{Interval: IntervalOneTime}.IsRecurring())
}
