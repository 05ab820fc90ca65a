package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"storesync/internal/domain"
)

// RunsExportHeader 运行历史导出表头
var RunsExportHeader = []string{
	"Run ID",
	"Job Type",
	"Tenant",
	"Started At",
	"Finished At",
	"Outcome",
	"Fetched",
	"Created",
	"Updated",
	"Status Changed",
	"Skipped",
	"Errors",
}

// GenerateRunsExport 生成运行历史导出 Excel 文件
// runs: 运行记录列表，为空时只生成表头
func GenerateRunsExport(runs []*domain.SyncRun) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Sync Runs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range RunsExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	columnWidths := []float64{
		38, // Run ID
		14, // Job Type
		38, // Tenant
		20, // Started At
		20, // Finished At
		10, // Outcome
		10, // Fetched
		10, // Created
		10, // Updated
		14, // Status Changed
		10, // Skipped
		60, // Errors
	}
	for i := range RunsExportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if i < len(columnWidths) {
			if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	const timeLayout = "2006-01-02 15:04:05"
	for rowIdx, run := range runs {
		row := rowIdx + 2
		finished := ""
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format(timeLayout)
		}
		values := []any{
			run.RunID,
			string(run.JobType),
			run.TenantID,
			run.StartedAt.Format(timeLayout),
			finished,
			string(run.Outcome),
			run.Counters.Fetched,
			run.Counters.Created,
			run.Counters.Updated,
			run.Counters.StatusChanged,
			run.Counters.Skipped,
			strings.Join(run.ErrorSummary, "; "),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}
