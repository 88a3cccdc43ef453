package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const company = testutil.TestCompanyID

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(companyID, channel, event string, payload interface{}) {
	m.Called(companyID, channel, event, payload)
}

func (m *mockBroadcaster) BroadcastDashboardUpdated(companyID string) {
	m.Called(companyID)
}

func newMockBroadcaster() *mockBroadcaster {
	bus := &mockBroadcaster{}
	bus.On("Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	bus.On("BroadcastDashboardUpdated", mock.Anything).Return().Maybe()
	return bus
}

type panicAuditor struct{}

func (panicAuditor) Record(context.Context, string, string, string, string, string, map[string]interface{}) error {
	panic("audit store exploded")
}

type reconcileFixture struct {
	db    *gorm.DB
	repos *repository.Repositories
	bus   *mockBroadcaster
	rec   *Reconciler
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	bus := newMockBroadcaster()
	rec := NewReconciler(repos, NewActivityAuditor(repos), bus, zap.NewNop(), ReconcileOptions{})
	return &reconcileFixture{db: db, repos: repos, bus: bus, rec: rec}
}

func (f *reconcileFixture) order(t *testing.T, id string) *entity.PurchaseOrder {
	t.Helper()
	var o entity.PurchaseOrder
	require.NoError(t, f.db.First(&o, "id = ?", id).Error)
	return &o
}

func (f *reconcileFixture) project(t *testing.T, id string) *entity.Project {
	t.Helper()
	var p entity.Project
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return &p
}

func (f *reconcileFixture) auditCount(t *testing.T, entityType, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&entity.ActivityLog{}).
		Where("entity_type = ? AND action = ?", entityType, action).Count(&n).Error)
	return n
}

// countUpdates counts UPDATE statements issued against table.
func countUpdates(t *testing.T, db *gorm.DB, table string) *int64 {
	t.Helper()
	var n int64
	err := db.Callback().Update().After("gorm:update").Register("test:count_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			atomic.AddInt64(&n, 1)
		}
	})
	require.NoError(t, err)
	return &n
}

func TestUpdateOrderProgressPartiallyDelivered(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedOrder(t, f.db, company, "po-1", nil, 50)
	testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), nil, entity.DeliveryStatusPartial, 20, 2000)
	testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), nil, entity.DeliveryStatusDelivered, 15, 1500)

	outcome := f.rec.UpdateOrderProgress(context.Background(), company, "po-1", entity.DeliveryStatusDelivered, decimal.NewFromInt(1500), testutil.TestUserID)
	require.True(t, outcome.OK(), "outcome: %+v", outcome)

	o := f.order(t, "po-1")
	assert.Equal(t, 35.0, o.DeliveredQty)
	assert.Equal(t, 15.0, o.RemainingQty)
	assert.Equal(t, 3500.0, o.DeliveredValue)
	assert.Equal(t, entity.DeliveryProgressPartiallyDelivered, o.DeliveryProgress)

	assert.EqualValues(t, 1, f.auditCount(t, EntityOrder, "delivery_progress_updated"))
	f.bus.AssertCalled(t, "Broadcast", company, "order:po-1", "updated", mock.Anything)
	f.bus.AssertCalled(t, "BroadcastDashboardUpdated", company)
}

func TestUpdateOrderProgressCompleted(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedOrder(t, f.db, company, "po-1", nil, 50)
	testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), nil, entity.DeliveryStatusDelivered, 30, 3000)
	testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), nil, entity.DeliveryStatusDelivered, 20, 2000)

	outcome := f.rec.UpdateOrderProgress(context.Background(), company, "po-1", entity.DeliveryStatusDelivered, decimal.Zero, "")
	require.True(t, outcome.OK())

	o := f.order(t, "po-1")
	assert.Equal(t, 50.0, o.DeliveredQty)
	assert.Equal(t, 0.0, o.RemainingQty)
	assert.Equal(t, entity.DeliveryProgressCompleted, o.DeliveryProgress)
}

func TestUpdateOrderProgressWithoutOrderedQtyNeverCompletes(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedOrder(t, f.db, company, "po-1", nil, 0)
	testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), nil, entity.DeliveryStatusDelivered, 10, 100)

	require.True(t, f.rec.UpdateOrderProgress(context.Background(), company, "po-1", "", decimal.Zero, "").OK())

	o := f.order(t, "po-1")
	assert.Equal(t, entity.DeliveryProgressPartiallyDelivered, o.DeliveryProgress)
	assert.Equal(t, 0.0, o.RemainingQty)
}

func TestUpdateOrderProgressMissingOrderIsSkipped(t *testing.T) {
	f := newReconcileFixture(t)

	outcome := f.rec.UpdateOrderProgress(context.Background(), company, "nope", "", decimal.Zero, "")
	assert.True(t, outcome.Skipped())
	assert.Equal(t, ReasonOrderNotFound, outcome.Reason)
	f.bus.AssertNotCalled(t, "BroadcastDashboardUpdated", mock.Anything)
}

func TestUpdateProjectActuals(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, company, "prj-1", 100000)
	testutil.SeedDelivery(t, f.db, company, nil, testutil.Ptr("prj-1"), entity.DeliveryStatusDelivered, 10, 60000)
	testutil.SeedExpense(t, f.db, company, "prj-1", 15000, entity.ExpenseStatusApproved)
	testutil.SeedExpense(t, f.db, company, "prj-1", 5000, entity.ExpenseStatusPending)

	outcome := f.rec.UpdateProjectActuals(context.Background(), company, "prj-1", testutil.TestUserID)
	require.True(t, outcome.OK(), "outcome: %+v", outcome)

	p := f.project(t, "prj-1")
	assert.Equal(t, 80000.0, p.ActualCost)
	assert.Equal(t, 20000.0, p.Variance)

	var log entity.ActivityLog
	require.NoError(t, f.db.Where("entity_type = ? AND action = ?", EntityProject, "actuals_auto_updated").First(&log).Error)
	assert.Equal(t, testutil.TestUserID, log.OperatorID)
	assert.EqualValues(t, 60000, log.Metadata["delivered_amount"])
	assert.EqualValues(t, 20000, log.Metadata["expense_amount"])
	f.bus.AssertCalled(t, "Broadcast", company, "project:prj-1", "updated", mock.Anything)
}

func TestUpdateProjectActualsExcludesPendingDeliveries(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, company, "prj-1", 100000)
	testutil.SeedDelivery(t, f.db, company, nil, testutil.Ptr("prj-1"), entity.DeliveryStatusDelivered, 10, 60000)
	testutil.SeedDelivery(t, f.db, company, nil, testutil.Ptr("prj-1"), entity.DeliveryStatusPending, 5, 5000)
	testutil.SeedExpense(t, f.db, company, "prj-1", 20000, entity.ExpenseStatusApproved)

	require.True(t, f.rec.UpdateProjectActuals(context.Background(), company, "prj-1", "").OK())

	p := f.project(t, "prj-1")
	assert.Equal(t, 80000.0, p.ActualCost)
	assert.Equal(t, 20000.0, p.Variance)
}

func TestUpdateProjectActualsExpenseStatusFilter(t *testing.T) {
	f := newReconcileFixture(t)
	f.rec.opts.ExpenseStatuses = []string{entity.ExpenseStatusApproved}
	testutil.SeedProject(t, f.db, company, "prj-1", 1000)
	testutil.SeedExpense(t, f.db, company, "prj-1", 300, entity.ExpenseStatusApproved)
	testutil.SeedExpense(t, f.db, company, "prj-1", 200, entity.ExpenseStatusPending)
	testutil.SeedExpense(t, f.db, company, "prj-1", 100, entity.ExpenseStatusRejected)

	require.True(t, f.rec.UpdateProjectActuals(context.Background(), company, "prj-1", "").OK())
	assert.Equal(t, 300.0, f.project(t, "prj-1").ActualCost)
}

func TestUpdateProjectActualsIsIdempotent(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, company, "prj-1", 100000)
	testutil.SeedDelivery(t, f.db, company, nil, testutil.Ptr("prj-1"), entity.DeliveryStatusDelivered, 10, 60000)
	testutil.SeedExpense(t, f.db, company, "prj-1", 20000, entity.ExpenseStatusApproved)

	updates := countUpdates(t, f.db, "projects")

	require.True(t, f.rec.UpdateProjectActuals(context.Background(), company, "prj-1", "").OK())
	require.EqualValues(t, 1, atomic.LoadInt64(updates))
	broadcasts := len(f.bus.Calls)

	second := f.rec.UpdateProjectActuals(context.Background(), company, "prj-1", "")
	assert.True(t, second.Skipped())
	assert.Equal(t, ReasonUnchanged, second.Reason)
	assert.EqualValues(t, 1, atomic.LoadInt64(updates), "second run must not write")
	assert.EqualValues(t, 1, f.auditCount(t, EntityProject, "actuals_auto_updated"))
	assert.Len(t, f.bus.Calls, broadcasts, "second run must not broadcast")
}

func TestReconcileArchivedDeliveryDropsOutOfActuals(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, company, "prj-1", 50000)
	testutil.SeedExpense(t, f.db, company, "prj-1", 2500, entity.ExpenseStatusApproved)
	d := testutil.SeedDelivery(t, f.db, company, nil, testutil.Ptr("prj-1"), entity.DeliveryStatusDelivered, 4, 10000)

	ctx := context.Background()
	require.True(t, f.rec.Reconcile(ctx, company, d.ID, "").Project.OK())
	assert.Equal(t, 12500.0, f.project(t, "prj-1").ActualCost)

	require.NoError(t, f.repos.ForCompany(company).Delivery.Archive(ctx, d.ID))
	report := f.rec.Reconcile(ctx, company, d.ID, "")
	require.True(t, report.Project.OK(), "report: %+v", report)

	p := f.project(t, "prj-1")
	assert.Equal(t, 2500.0, p.ActualCost)
	assert.Equal(t, 47500.0, p.Variance)
}

func TestReconcileFansOutToOrderAndProject(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, company, "prj-1", 10000)
	testutil.SeedOrder(t, f.db, company, "po-1", testutil.Ptr("prj-1"), 10)
	d := testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), testutil.Ptr("prj-1"), entity.DeliveryStatusPartial, 4, 400)

	report := f.rec.Reconcile(context.Background(), company, d.ID, testutil.TestUserID)

	assert.True(t, report.Delivery.OK())
	assert.True(t, report.Order.OK())
	assert.True(t, report.Project.OK())
	assert.False(t, report.Failed())
	assert.Equal(t, "400.00", report.DeliveredValue.StringFixed(2))
	assert.Equal(t, 4.0, f.order(t, "po-1").DeliveredQty)
	assert.Equal(t, 400.0, f.project(t, "prj-1").ActualCost)
}

func TestReconcileUnlinkedDeliverySkipsUpdaters(t *testing.T) {
	f := newReconcileFixture(t)
	d := testutil.SeedDelivery(t, f.db, company, nil, nil, entity.DeliveryStatusDelivered, 1, 10)

	report := f.rec.Reconcile(context.Background(), company, d.ID, "")
	assert.True(t, report.Delivery.OK())
	assert.Equal(t, ReasonNoOrder, report.Order.Reason)
	assert.Equal(t, ReasonNoProject, report.Project.Reason)
}

func TestReconcileOtherCompanyDeliveryIsNotFound(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, company, "prj-1", 1000)
	d := testutil.SeedDelivery(t, f.db, company, nil, testutil.Ptr("prj-1"), entity.DeliveryStatusDelivered, 1, 500)

	report := f.rec.Reconcile(context.Background(), "company-other", d.ID, "")
	assert.True(t, report.Delivery.Skipped())
	assert.Equal(t, ReasonDeliveryNotFound, report.Delivery.Reason)
	assert.Equal(t, 0.0, f.project(t, "prj-1").ActualCost)
}

func TestReconcileReportsDatabaseFailure(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedOrder(t, f.db, company, "po-1", nil, 10)
	d := testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), nil, entity.DeliveryStatusDelivered, 1, 10)
	require.NoError(t, f.db.Migrator().DropTable(&entity.PurchaseOrder{}))

	report := f.rec.Reconcile(context.Background(), company, d.ID, "")
	assert.True(t, report.Delivery.OK())
	assert.True(t, report.Order.Failed())
	assert.Error(t, report.Order.Err)
	assert.True(t, report.Failed())
}

func TestReconcileRecoversFromPanics(t *testing.T) {
	f := newReconcileFixture(t)
	f.rec.auditor = panicAuditor{}
	testutil.SeedOrder(t, f.db, company, "po-1", nil, 10)
	d := testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), nil, entity.DeliveryStatusDelivered, 2, 20)

	var report Report
	assert.NotPanics(t, func() {
		report = f.rec.Reconcile(context.Background(), company, d.ID, "")
	})
	assert.True(t, report.Order.Failed())
	assert.Contains(t, report.Order.Reason, "audit store exploded")
}

func TestUpdateProjectActualsRaisesBudgetAlert(t *testing.T) {
	f := newReconcileFixture(t)
	f.rec.SetBudgetMonitor(NewBudgetMonitor(f.repos, f.bus, zap.NewNop()))
	testutil.SeedProject(t, f.db, company, "prj-1", 1000)
	testutil.SeedExpense(t, f.db, company, "prj-1", 800, entity.ExpenseStatusApproved)

	require.True(t, f.rec.UpdateProjectActuals(context.Background(), company, "prj-1", "").OK())

	alerts, total, err := f.repos.ForCompany(company).Notification.FindByType(context.Background(), NotificationBudgetAlert, 1, 20)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, string(AlertWarning), alerts[0].Metadata["threshold"])
	assert.Equal(t, "/projects/prj-1", alerts[0].Link)
	f.bus.AssertCalled(t, "Broadcast", company, "company:"+company, NotificationBudgetAlert, mock.Anything)
}

func TestSweepCompanyCorrectsDrift(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, company, "prj-1", 1000)
	testutil.SeedOrder(t, f.db, company, "po-1", testutil.Ptr("prj-1"), 10)
	testutil.SeedDelivery(t, f.db, company, testutil.Ptr("po-1"), testutil.Ptr("prj-1"), entity.DeliveryStatusDelivered, 10, 600)

	ctx := context.Background()
	result, err := f.rec.SweepCompany(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Orders)
	assert.Equal(t, 1, result.Projects)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 0, result.Failed)

	assert.Equal(t, entity.DeliveryProgressCompleted, f.order(t, "po-1").DeliveryProgress)
	assert.Equal(t, 600.0, f.project(t, "prj-1").ActualCost)

	again, err := f.rec.SweepCompany(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Updated, "nothing drifted since the last sweep")
}

func TestSweepAllVisitsEveryCompany(t *testing.T) {
	f := newReconcileFixture(t)
	testutil.SeedProject(t, f.db, "company-a", "prj-a", 100)
	testutil.SeedProject(t, f.db, "company-b", "prj-b", 100)
	testutil.SeedExpense(t, f.db, "company-a", "prj-a", 10, entity.ExpenseStatusApproved)
	testutil.SeedExpense(t, f.db, "company-b", "prj-b", 20, entity.ExpenseStatusApproved)

	result, err := f.rec.SweepAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Companies)
	assert.Equal(t, 10.0, f.project(t, "prj-a").ActualCost)
	assert.Equal(t, 20.0, f.project(t, "prj-b").ActualCost)
}
