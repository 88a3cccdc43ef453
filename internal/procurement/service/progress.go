package service

import (
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/shopspring/decimal"
)

// ComputeOrderProgress derives an order's delivery progress and remaining
// quantity from its ordered and delivered quantities. An order without an
// ordered quantity can never be completed.
func ComputeOrderProgress(orderedQty, deliveredQty decimal.Decimal) (entity.DeliveryProgress, decimal.Decimal) {
	remaining := orderedQty.Sub(deliveredQty)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	switch {
	case orderedQty.IsPositive() && deliveredQty.GreaterThanOrEqual(orderedQty):
		return entity.DeliveryProgressCompleted, remaining
	case deliveredQty.IsPositive():
		return entity.DeliveryProgressPartiallyDelivered, remaining
	default:
		return entity.DeliveryProgressNotStarted, remaining
	}
}

// Actuals 项目实际成本拆分
type Actuals struct {
	DeliveredAmount decimal.Decimal
	ExpenseAmount   decimal.Decimal
	ActualCost      decimal.Decimal
	Variance        decimal.Decimal
}

// ComputeActuals returns actual cost = delivered + expenses and variance = budget - actual cost.
func ComputeActuals(budget, deliveredAmount, expenseAmount decimal.Decimal) Actuals {
	actual := deliveredAmount.Add(expenseAmount).Round(2)
	return Actuals{
		DeliveredAmount: deliveredAmount.Round(2),
		ExpenseAmount:   expenseAmount.Round(2),
		ActualCost:      actual,
		Variance:        budget.Sub(actual).Round(2),
	}
}

// Changed reports whether the computed figures differ from the cached project values.
func (a Actuals) Changed(p *entity.Project) bool {
	return !decimal.NewFromFloat(p.ActualCost).Equal(a.ActualCost) ||
		!decimal.NewFromFloat(p.Variance).Equal(a.Variance)
}
