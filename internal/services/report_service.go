package services

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
)

type ReportServiceInterface interface {
	Financials(ctx context.Context, actor entities.Actor) (*repositories.FinancialSummary, error)
	RevenueBreakdown(ctx context.Context, actor entities.Actor) ([]repositories.RevenueBucket, error)
	ExportRevenue(ctx context.Context, actor entities.Actor, w io.Writer) error
}

type ReportService struct {
	reportRepo repositories.ReportRepositoryInterface
	isAdmin    func(int64) bool
	logger     *zap.Logger
}

func NewReportService(reportRepo repositories.ReportRepositoryInterface, isAdmin func(int64) bool, logger *zap.Logger) ReportServiceInterface {
	return &ReportService{reportRepo: reportRepo, isAdmin: isAdmin, logger: logger}
}

// authorize lets admins and the local system actor (CLI) through.
func (s *ReportService) authorize(actor entities.Actor) error {
	if actor.Role == entities.RoleSystem {
		return nil
	}
	if actor.Role == entities.RoleAdmin && s.isAdmin(actor.ID) {
		return nil
	}
	return apperrors.NewAuthorizationError("reports are for admins only")
}

func (s *ReportService) Financials(ctx context.Context, actor entities.Actor) (*repositories.FinancialSummary, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	return s.reportRepo.ComputeAdminFinancials(ctx)
}

func (s *ReportService) RevenueBreakdown(ctx context.Context, actor entities.Actor) ([]repositories.RevenueBucket, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	return s.reportRepo.ComputeRevenueBreakdown(ctx)
}

var revenueHeaders = []interface{}{"Month", "Payment method", "Orders", "Revenue (SAR)", "Margin (SAR)"}

// ExportRevenue writes the monthly breakdown as a standalone xlsx file.
func (s *ReportService) ExportRevenue(ctx context.Context, actor entities.Actor, w io.Writer) error {
	buckets, err := s.RevenueBreakdown(ctx, actor)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("closing report workbook", zap.Error(cerr))
		}
	}()
	sheet := "Revenue"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &revenueHeaders); err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "E1", style)
	}
	for i, b := range buckets {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{b.Month, b.Method, b.Orders, money.Display(b.Revenue), money.Display(b.Margin)}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	_, err = f.WriteTo(w)
	return err
}
