package history

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "CampaignHistory"

var exportHeaders = []string{
	"ID", "Campaign ID", "Campaign", "Action", "Changed By", "Previous Status",
	"New Status", "Comment", "Created At",
}

// ExportXLSX writes every row matching f, oldest first, as an XLSX workbook.
// Paging fields of f are ignored. It returns the number of rows written.
func (s *Service) ExportXLSX(ctx context.Context, f Filter, w io.Writer) (int, error) {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName(book.GetSheetName(0), sheetName); err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		book.SetCellValue(sheetName, cell, header)
		book.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	row := 1
	err = s.Each(ctx, f, func(e Entry) error {
		row++
		changedBy := e.ChangedByName
		if changedBy == "" && e.ChangedBy != nil {
			changedBy = fmt.Sprintf("#%d", *e.ChangedBy)
		}
		values := []any{
			e.ID, e.CampaignID, e.CampaignName, string(e.ActionType), changedBy,
			e.PreviousStatus, e.NewStatus, e.Comment, e.CreatedAt.In(s.loc).Format("2006-01-02 15:04:05"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		return book.SetSheetRow(sheetName, cell, &values)
	})
	if err != nil {
		return 0, err
	}

	book.SetColWidth(sheetName, "A", "B", 10)
	book.SetColWidth(sheetName, "C", "G", 18)
	book.SetColWidth(sheetName, "H", "H", 60)
	book.SetColWidth(sheetName, "I", "I", 20)
	book.SetActiveSheet(0)

	if err := book.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return row - 1, nil
}
