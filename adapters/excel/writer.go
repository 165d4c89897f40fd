package excel

import (
	"fmt"

	"floodattr/domain/attrib"
	"floodattr/internal/errors"

	"github.com/xuri/excelize/v2"
)

// Sheet names in the exported workbook.
const (
	sheetSummary   = "Summary"
	sheetCities    = "City Attribution"
	sheetGlobal    = "Global PAF"
	sheetScenarios = "Scenarios"
	sheetSkipped   = "Skipped"
)

// ReportWriter exports a run report as an Excel workbook.
type ReportWriter struct{}

// NewReportWriter creates a report writer.
func NewReportWriter() *ReportWriter {
	return &ReportWriter{}
}

// Write renders the report into a workbook at path.
func (w *ReportWriter) Write(report *attrib.RunReport, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetSummary)
	if err := w.writeSummary(f, report); err != nil {
		return errors.WithCode(errors.CodeExportError, err)
	}
	if err := w.writeCities(f, report); err != nil {
		return errors.WithCode(errors.CodeExportError, err)
	}
	if err := w.writeGlobal(f, report); err != nil {
		return errors.WithCode(errors.CodeExportError, err)
	}
	if len(report.Scenarios) > 0 {
		if err := w.writeScenarios(f, report); err != nil {
			return errors.WithCode(errors.CodeExportError, err)
		}
	}
	if len(report.Skipped) > 0 {
		if err := w.writeSkipped(f, report); err != nil {
			return errors.WithCode(errors.CodeExportError, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.WithCode(errors.CodeExportError,
			errors.Wrapf(err, "saving workbook %s", path))
	}
	return nil
}

func (w *ReportWriter) writeSummary(f *excelize.File, r *attrib.RunReport) error {
	rows := [][]interface{}{
		{"Run ID", r.RunID.String()},
		{"Created", r.CreatedAt.Time().Format("2006-01-02 15:04:05")},
		{"Confidence level", r.ConfidenceLevel},
		{"Estimator", string(r.Estimator)},
		{"CI aggregation", string(r.CIMode)},
		{"Observations", r.Observations},
		{"Cities", r.CityCount},
		{"Offset available", r.OffsetAvailable},
		{},
		{"Total effect (theta)", r.TotalEffect.Theta.Point, r.TotalEffect.Theta.Lower, r.TotalEffect.Theta.Upper},
		{"PAF", r.TotalEffect.PAF.Point, r.TotalEffect.PAF.Lower, r.TotalEffect.PAF.Upper},
		{"Rate ratio", r.TotalEffect.RateRatio.Point, r.TotalEffect.RateRatio.Lower, r.TotalEffect.RateRatio.Upper},
		{"Percent change", r.TotalEffect.PercentChange.Point, r.TotalEffect.PercentChange.Lower, r.TotalEffect.PercentChange.Upper},
		{},
		{"Estimates succeeded", r.Succeeded()},
		{"Estimates skipped", r.SkipCount()},
		{"Unmatched group keys", r.UnmatchedGroupKeys},
	}
	return writeRows(f, sheetSummary, nil, rows)
}

func (w *ReportWriter) writeCities(f *excelize.File, r *attrib.RunReport) error {
	header := []interface{}{
		"ADM3", "Observations", "Flood weeks", "Total cases",
		"Mean PAF", "Median PAF", "PAF", "PAF lower", "PAF upper",
		"Attributable cases", "Attr lower", "Attr upper", "Avg population",
	}
	rows := make([][]interface{}, 0, len(r.Cities))
	for i := range r.Cities {
		c := &r.Cities[i]
		rows = append(rows, []interface{}{
			c.City.String(), c.Observations, c.FloodWeeks, c.TotalCases,
			c.MeanPAF, c.MedianPAF, c.PAF.Point, c.PAF.Lower, c.PAF.Upper,
			c.AttributableCases.Point, c.AttributableCases.Lower, c.AttributableCases.Upper,
			c.AvgPopulation,
		})
	}
	return writeRows(f, sheetCities, header, rows)
}

func (w *ReportWriter) writeGlobal(f *excelize.File, r *attrib.RunReport) error {
	header := []interface{}{"Weighting", "PAF", "Lower", "Upper", "Cities"}
	rows := make([][]interface{}, 0, len(r.Global))
	for _, g := range r.Global {
		rows = append(rows, []interface{}{
			string(g.Weighting), g.PAF.Point, g.PAF.Lower, g.PAF.Upper, g.Cities,
		})
	}
	return writeRows(f, sheetGlobal, header, rows)
}

func (w *ReportWriter) writeScenarios(f *excelize.File, r *attrib.RunReport) error {
	header := []interface{}{
		"ADM3", "Scenario", "Year", "Baseline cases", "Population adjusted",
		"Percent change", "Pct lower", "Pct upper",
		"Scenario cases", "Additional cases", "Additional lower", "Additional upper",
	}
	rows := make([][]interface{}, 0, len(r.Scenarios))
	for i := range r.Scenarios {
		s := &r.Scenarios[i]
		rows = append(rows, []interface{}{
			s.City.String(), s.Scenario, s.Year, s.BaselineCases, s.PopulationAdjusted,
			s.PercentChange.Point, s.PercentChange.Lower, s.PercentChange.Upper,
			s.ScenarioCases, s.AdditionalCases, s.AdditionalLower, s.AdditionalUpper,
		})
	}
	return writeRows(f, sheetScenarios, header, rows)
}

func (w *ReportWriter) writeSkipped(f *excelize.File, r *attrib.RunReport) error {
	header := []interface{}{"Key", "Code", "Reason"}
	rows := make([][]interface{}, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		rows = append(rows, []interface{}{s.Key, s.Code, s.Reason})
	}
	return writeRows(f, sheetSkipped, header, rows)
}

// writeRows creates the sheet if needed and fills it row by row, with an
// optional header row.
func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if idx, err := f.GetSheetIndex(sheet); err == nil && idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet %s: %w", sheet, err)
		}
	}
	rowIdx := 1
	if header != nil {
		if err := setRow(f, sheet, rowIdx, header); err != nil {
			return err
		}
		rowIdx++
	}
	for _, row := range rows {
		if err := setRow(f, sheet, rowIdx, row); err != nil {
			return err
		}
		rowIdx++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("setting %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
