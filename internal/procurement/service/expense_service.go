package service

import (
	"context"
	"fmt"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/sse"
	"go.uber.org/zap"
)

// ExpenseService 费用服务
type ExpenseService struct {
	repos      *repository.Repositories
	reconciler *Reconciler
	auditor    Auditor
	bus        Broadcaster
	logger     *zap.Logger
}

func NewExpenseService(repos *repository.Repositories, reconciler *Reconciler, auditor Auditor, bus Broadcaster, logger *zap.Logger) *ExpenseService {
	return &ExpenseService{repos: repos, reconciler: reconciler, auditor: auditor, bus: bus, logger: logger}
}

// CreateExpenseRequest 创建费用请求
type CreateExpenseRequest struct {
	ProjectID   string  `json:"project_id" binding:"required"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Category    string  `json:"category"`
	Vendor      string  `json:"vendor"`
	Description string  `json:"description"`
}

// ExpenseResult 费用变更结果，附带项目实际成本重算结果
type ExpenseResult struct {
	Expense *entity.Expense `json:"expense"`
	Project Outcome         `json:"project"`
}

// Create logs a pending expense against a project and recomputes the
// project's actual cost.
func (s *ExpenseService) Create(ctx context.Context, companyID, userID string, req *CreateExpenseRequest) (*ExpenseResult, error) {
	tenant := s.repos.ForCompany(companyID)
	if _, err := tenant.Project.FindByID(ctx, req.ProjectID); err != nil {
		return nil, referenceError(err)
	}

	category := req.Category
	if category == "" {
		category = "general"
	}
	expense := &entity.Expense{
		ProjectID:   req.ProjectID,
		Vendor:      req.Vendor,
		Category:    category,
		Description: req.Description,
		Amount:      req.Amount,
		Status:      entity.ExpenseStatusPending,
		CreatedBy:   userID,
	}
	if err := tenant.Expense.Create(ctx, expense); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}

	s.record(ctx, companyID, userID, expense.ID, "create", map[string]interface{}{
		"project_id": expense.ProjectID,
		"amount":     expense.Amount,
		"category":   expense.Category,
	})
	return s.afterChange(ctx, companyID, userID, expense, "created"), nil
}

// List 查询费用列表
func (s *ExpenseService) List(ctx context.Context, companyID string, page, pageSize int, filters map[string]string) ([]entity.Expense, int64, error) {
	return s.repos.ForCompany(companyID).Expense.FindAll(ctx, page, pageSize, filters)
}

// Approve 审批通过
func (s *ExpenseService) Approve(ctx context.Context, companyID, userID, id string) (*ExpenseResult, error) {
	return s.decide(ctx, companyID, userID, id, entity.ExpenseStatusApproved)
}

// Reject 审批驳回
func (s *ExpenseService) Reject(ctx context.Context, companyID, userID, id string) (*ExpenseResult, error) {
	return s.decide(ctx, companyID, userID, id, entity.ExpenseStatusRejected)
}

func (s *ExpenseService) decide(ctx context.Context, companyID, userID, id, status string) (*ExpenseResult, error) {
	tenant := s.repos.ForCompany(companyID)

	expense, err := tenant.Expense.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expense.Status != entity.ExpenseStatusPending {
		return nil, fmt.Errorf("%w: expense is %s", ErrExpenseNotPending, expense.Status)
	}
	if err := tenant.Expense.UpdateStatus(ctx, id, status, userID); err != nil {
		return nil, err
	}

	s.record(ctx, companyID, userID, id, status, map[string]interface{}{
		"project_id":      expense.ProjectID,
		"amount":          expense.Amount,
		"previous_status": expense.Status,
	})

	expense, err = tenant.Expense.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.afterChange(ctx, companyID, userID, expense, "updated"), nil
}

// afterChange 费用变更后重算项目实际成本并广播
func (s *ExpenseService) afterChange(ctx context.Context, companyID, userID string, expense *entity.Expense, event string) *ExpenseResult {
	outcome := s.reconciler.UpdateProjectActuals(ctx, companyID, expense.ProjectID, userID)
	if outcome.Failed() {
		s.logger.Warn("Project actuals not refreshed after expense change",
			zap.String("expense_id", expense.ID), zap.String("project_id", expense.ProjectID), zap.Error(outcome.Err))
	}
	s.bus.Broadcast(companyID, sse.ProjectChannel(expense.ProjectID), "expense_"+event, expense)
	return &ExpenseResult{Expense: expense, Project: outcome}
}

func (s *ExpenseService) record(ctx context.Context, companyID, userID, expenseID, action string, metadata map[string]interface{}) {
	if err := s.auditor.Record(ctx, companyID, userID, EntityExpense, expenseID, action, metadata); err != nil {
		s.logger.Warn("Failed to record expense audit entry",
			zap.String("expense_id", expenseID), zap.String("action", action), zap.Error(err))
	}
}
