package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"struk/internal/analytics"
	"struk/internal/core"
	"struk/internal/log"
)

// DashboardService computes the spending dashboard of a user.
type DashboardService struct {
	receipts *ReceiptStore
	profiles *ProfileService
	logger   *log.Logger
}

func NewDashboardService(receipts *ReceiptStore, profiles *ProfileService) *DashboardService {
	return &DashboardService{
		receipts: receipts,
		profiles: profiles,
		logger:   receipts.logger.WithComponent(log.ComponentDashboard),
	}
}

// Dashboard aggregates the user's receipts as of now. A user without a
// document is NotFound; a user without a profile has zero income.
func (d *DashboardService) Dashboard(ctx context.Context, userID string, now time.Time) (analytics.Result, error) {
	var (
		snap   receiptSnapshot
		income core.Money
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = d.receipts.snapshot(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		income, err = d.profiles.Income(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return analytics.Result{}, err
	}
	if !snap.Exists {
		return analytics.Result{}, core.NotFoundf("user %s", userID)
	}

	res := analytics.Compute(snap.Receipts, income, now)
	d.logger.DebugContext(ctx, "Dashboard computed",
		log.FieldOperation, log.OpAggregate,
		log.FieldUserID, userID,
		log.FieldCount, len(snap.Receipts))
	return res, nil
}
