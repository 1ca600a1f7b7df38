package inventory

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const stockCardSheet = "StockCard"

var stockCardHeaders = []any{"Date", "Type", "Quantity", "Balance After", "Reserved After", "Order", "Notes"}

// ExportHistory writes the item's full ledger, oldest first, as an XLSX stock card.
func (s *Service) ExportHistory(ctx context.Context, fabricID int64, w io.Writer) error {
	item, err := s.repo.GetFabric(ctx, fabricID)
	if err != nil {
		return err
	}
	movements, err := s.repo.AllMovements(ctx, fabricID)
	if err != nil {
		return err
	}
	f, err := BuildStockCard(item, movements)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// BuildStockCard lays the movements out in a workbook.
func BuildStockCard(item FabricItem, movements []Movement) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(stockCardSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("inventory: stock card sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		_ = f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	title := fmt.Sprintf("%s (%s)", item.Name, item.Code)
	if err := f.SetCellValue(stockCardSheet, "A1", title); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(stockCardSheet, "A2", &stockCardHeaders); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetCellStyle(stockCardSheet, "A2", "G2", headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, m := range movements {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		qty, _ := m.Quantity.Float64()
		bal, _ := m.BalanceAfter.Float64()
		res, _ := m.ReservedAfter.Float64()
		order := ""
		if m.OrderID != 0 {
			order = fmt.Sprintf("%d", m.OrderID)
		}
		row := []any{m.CreatedAt.Format(time.RFC3339), string(m.Type), qty, bal, res, order, m.Notes}
		if err := f.SetSheetRow(stockCardSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}
