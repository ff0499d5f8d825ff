package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"subtitle-pipeline-go/internal/pipeline"
	"subtitle-pipeline-go/internal/types"
)

const sheet = "Run"

// Write saves a per-item run report as an xlsx workbook: one row per item
// with its terminal status, artifact states, attempts, and failure reason.
func Write(path string, sum *pipeline.Summary, langs []string) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	header := []interface{}{"run_id", "item_id", "title", "status", "attempts", "duration", "artifacts", "error"}
	for col, v := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	results := make([]pipeline.ItemResult, len(sum.Results))
	copy(results, sum.Results)
	sort.Slice(results, func(i, j int) bool { return results[i].Item.ID < results[j].Item.ID })

	for row, res := range results {
		values := []interface{}{
			sum.RunID,
			res.Item.ID,
			res.Item.Title,
			status(res),
			res.Attempts,
			res.Duration.String(),
			artifactStates(res.Item, langs),
			errString(res.Err),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row+2, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func status(res pipeline.ItemResult) string {
	switch {
	case res.Skipped:
		return "skipped"
	case res.Err != nil:
		return "failed"
	default:
		return "succeeded"
	}
}

func artifactStates(it *types.Item, langs []string) string {
	parts := make([]string, 0, len(langs))
	for _, lang := range langs {
		state := "absent"
		if a, ok := it.Artifacts[lang]; ok {
			state = string(a.State)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", lang, state))
	}
	return strings.Join(parts, " ")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
