// Package report renders settlement data as spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	sheetDistributions = "Distributions"
	sheetSummary       = "Summary"
)

var distributionHeader = []interface{}{
	"Result ID", "User ID", "Position", "Kills", "Prize Type", "Amount (minor)", "Currency", "Transaction ID", "Credited At",
}

// WriteDistributionWorkbook writes an xlsx with one row per credited prize
// and a summary sheet.
func WriteDistributionWorkbook(w io.Writer, t *domain.Tournament, records []domain.DistributionRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetDistributions); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := f.SetSheetRow(sheetDistributions, "A1", &distributionHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(distributionHeader), 1)
	if err := f.SetCellStyle(sheetDistributions, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	var total int64
	for i, rec := range records {
		var position interface{} = ""
		if rec.Position != nil {
			position = *rec.Position
		}
		row := []interface{}{
			rec.ResultID.String(),
			rec.UserID.String(),
			position,
			rec.Kills,
			rec.PrizeType,
			rec.PrizeAmount,
			t.Currency,
			rec.TransactionID.String(),
			rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetDistributions, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
		total += rec.PrizeAmount
	}
	if err := f.SetColWidth(sheetDistributions, "A", "I", 22); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Tournament", t.Name},
		{"Tournament ID", t.ID.String()},
		{"Currency", t.Currency},
		{"Winners credited", len(records)},
		{"Total distributed (minor)", total},
	}
	if t.PrizesDistributedAt != nil {
		summary = append(summary, []interface{}{"Distributed at", t.PrizesDistributedAt.UTC().Format("2006-01-02 15:04:05")})
	}
	for i := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetSummary, cell, &summary[i]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetCellStyle(sheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	if err := f.SetColWidth(sheetSummary, "A", "B", 28); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ExportFilename is the download name of a tournament's workbook.
func ExportFilename(t *domain.Tournament) string {
	return fmt.Sprintf("prize-distributions-%s.xlsx", t.ID)
}
