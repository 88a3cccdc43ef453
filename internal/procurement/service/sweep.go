package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SweepResult 全量对账统计
type SweepResult struct {
	Companies int `json:"companies"`
	Orders    int `json:"orders"`
	Projects  int `json:"projects"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

func (s *SweepResult) add(o Outcome) {
	switch o.Status {
	case OutcomeOK:
		s.Updated++
	case OutcomeFailed:
		s.Failed++
	}
}

func (s *SweepResult) merge(other SweepResult) {
	s.Companies += other.Companies
	s.Orders += other.Orders
	s.Projects += other.Projects
	s.Updated += other.Updated
	s.Failed += other.Failed
}

// SweepCompany recomputes every order and project of a company. It corrects
// aggregates left stale by a failed or interleaved reconciliation.
func (r *Reconciler) SweepCompany(ctx context.Context, companyID string) (SweepResult, error) {
	result := SweepResult{Companies: 1}
	tenant := r.repos.ForCompany(companyID)

	orderIDs, err := tenant.Order.ListIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("list orders: %w", err)
	}
	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Orders++
		result.add(r.updateOrder(ctx, companyID, id, "", decimal.Zero, "", true))
	}

	projectIDs, err := tenant.Project.ListIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("list projects: %w", err)
	}
	for _, id := range projectIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Projects++
		result.add(r.UpdateProjectActuals(ctx, companyID, id, ""))
	}

	r.logger.Info("Company reconciliation sweep finished",
		zap.String("company_id", companyID),
		zap.Int("orders", result.Orders),
		zap.Int("projects", result.Projects),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}

// SweepAll 对所有公司执行全量对账
func (r *Reconciler) SweepAll(ctx context.Context) (SweepResult, error) {
	var total SweepResult
	companyIDs, err := r.repos.CompanyIDs(ctx)
	if err != nil {
		return total, fmt.Errorf("list companies: %w", err)
	}
	for _, companyID := range companyIDs {
		res, err := r.SweepCompany(ctx, companyID)
		total.merge(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
