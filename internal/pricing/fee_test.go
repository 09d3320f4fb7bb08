package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFeePolicyApply(t *testing.T) {
	cases := []struct {
		name     string
		policy   FeePolicy
		subtotal string
		want     string
	}{
		{name: "no fee configured", policy: FeePolicy{}, subtotal: "54000", want: "0.00"},
		{name: "percentage", policy: FeePolicy{Percent: decimal.NewFromInt(5)}, subtotal: "54000", want: "2700.00"},
		{name: "percentage rounds half up", policy: FeePolicy{Percent: decimal.NewFromFloat(2.5)}, subtotal: "0.30", want: "0.01"},
		{name: "flat amount", policy: FeePolicy{FlatAmount: decimal.NewFromInt(15000)}, subtotal: "54000", want: "15000.00"},
		{name: "min fee", policy: FeePolicy{Percent: decimal.NewFromInt(1), MinFee: decimal.NewFromInt(5000)}, subtotal: "54000", want: "5000.00"},
		{name: "max fee", policy: FeePolicy{Percent: decimal.NewFromInt(50), MaxFee: decimal.NewFromInt(10000)}, subtotal: "54000", want: "10000.00"},
		{name: "zero subtotal", policy: FeePolicy{FlatAmount: decimal.NewFromInt(15000)}, subtotal: "0", want: "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.policy.Apply(money(t, tc.subtotal))
			requireMoney(t, tc.want, got)
		})
	}
}

func TestFeePolicyValidate(t *testing.T) {
	require.NoError(t, FeePolicy{Percent: decimal.NewFromInt(5)}.Validate())
	require.Error(t, FeePolicy{Percent: decimal.NewFromInt(-1)}.Validate())
	require.Error(t, FeePolicy{MinFee: decimal.NewFromInt(10), MaxFee: decimal.NewFromInt(5)}.Validate())
	require.NoError(t, FeePolicy{MinFee: decimal.NewFromInt(10)}.Validate(), "zero max fee means uncapped")
}
