// Package excel loads panel and projection tables from .xlsx/.csv files and
// exports run reports as workbooks. All file access completes before the
// attribution core receives its inputs.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"floodattr/domain/attrib"
	"floodattr/domain/core"
	"floodattr/domain/panel"
	"floodattr/ports"

	"github.com/xuri/excelize/v2"
)

// Header aliases accepted for the panel's key columns.
var (
	cityHeaders = []string{"adm3", "city", "city_id", "municipality"}
	yearHeaders = []string{"year"}
	weekHeaders = []string{"week", "epi_week"}
)

// rawAliases maps accepted input headers onto canonical raw column names.
var rawAliases = map[string]string{
	"flood":         panel.RawFlood,
	"flood_index":   panel.RawFlood,
	"cases":         panel.RawCases,
	"malaria_cases": panel.RawCases,
	"population":    panel.RawPopulation,
	"pop":           panel.RawPopulation,
	"pop_density":   panel.RawPopDensity,
	"light_density": panel.RawLightDensity,
	"urban":         panel.RawUrban,
	"urban_index":   panel.RawUrban,
	"temp":          panel.RawTemp,
	"temperature":   panel.RawTemp,
	"temp_max":      panel.RawTempMax,
	"temp_min":      panel.RawTempMin,
	"pressure":      panel.RawPressure,
	"wind":          panel.RawWind,
	"humidity":      panel.RawHumidity,
	"precip":        panel.RawPrecip,
	"precipitation": panel.RawPrecip,
}

// PanelLoader reads city-week rows from an .xlsx or .csv file.
type PanelLoader struct {
	path string
}

// NewPanelLoader creates a panel loader for the given file.
func NewPanelLoader(path string) *PanelLoader {
	return &PanelLoader{path: path}
}

// LoadRows reads the file into raw panel rows. Empty cells leave the
// corresponding column absent from the row's value map; availability is
// resolved once by panel preparation, not here.
func (l *PanelLoader) LoadRows(ctx context.Context) ([]panel.RawRow, error) {
	records, err := readTable(l.path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("panel file %s has no data rows", l.path)
	}

	header := normalizeHeader(records[0])
	cityCol := findHeader(header, cityHeaders)
	yearCol := findHeader(header, yearHeaders)
	weekCol := findHeader(header, weekHeaders)
	if cityCol < 0 || yearCol < 0 || weekCol < 0 {
		return nil, fmt.Errorf("panel file %s is missing city/year/week key columns", l.path)
	}

	rows := make([]panel.RawRow, 0, len(records)-1)
	for ri, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		city, err := core.ParseCityID(cell(rec, cityCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", ri+2, err)
		}
		year, err := strconv.Atoi(strings.TrimSpace(cell(rec, yearCol)))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing year: %w", ri+2, err)
		}
		week, err := strconv.Atoi(strings.TrimSpace(cell(rec, weekCol)))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing week: %w", ri+2, err)
		}

		row := panel.RawRow{
			City:   city,
			Year:   year,
			Week:   week,
			Values: make(map[string]float64),
		}
		for ci, name := range header {
			canonical, ok := rawAliases[name]
			if !ok {
				continue
			}
			raw := strings.TrimSpace(cell(rec, ci))
			if raw == "" || strings.EqualFold(raw, "na") {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing %s: %w", ri+2, name, err)
			}
			row.Values[canonical] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ProjectionLoader reads the future-population table keyed by
// (city, scenario, year).
type ProjectionLoader struct {
	path string
}

// NewProjectionLoader creates a projection loader for the given file.
func NewProjectionLoader(path string) *ProjectionLoader {
	return &ProjectionLoader{path: path}
}

// LoadProjections reads the projection file.
func (l *ProjectionLoader) LoadProjections(ctx context.Context) ([]attrib.PopulationProjection, error) {
	records, err := readTable(l.path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("projection file %s has no data rows", l.path)
	}

	header := normalizeHeader(records[0])
	cityCol := findHeader(header, cityHeaders)
	scenarioCol := findHeader(header, []string{"scenario", "ssp"})
	yearCol := findHeader(header, yearHeaders)
	popCol := findHeader(header, []string{"population", "pop"})
	if cityCol < 0 || scenarioCol < 0 || yearCol < 0 || popCol < 0 {
		return nil, fmt.Errorf("projection file %s is missing city/scenario/year/population columns", l.path)
	}

	out := make([]attrib.PopulationProjection, 0, len(records)-1)
	for ri, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		city, err := core.ParseCityID(cell(rec, cityCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", ri+2, err)
		}
		year, err := strconv.Atoi(strings.TrimSpace(cell(rec, yearCol)))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing year: %w", ri+2, err)
		}
		pop, err := strconv.ParseFloat(strings.TrimSpace(cell(rec, popCol)), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing population: %w", ri+2, err)
		}
		out = append(out, attrib.PopulationProjection{
			City:       city,
			Scenario:   strings.ToUpper(strings.TrimSpace(cell(rec, scenarioCol))),
			Year:       year,
			Population: pop,
		})
	}
	return out, nil
}

// readTable reads all rows from Sheet1 of an .xlsx file, or from a CSV file.
func readTable(path string) ([][]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening CSV file: %w", err)
		}
		defer f.Close()
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		return r.ReadAll()
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening Excel file: %w", err)
	}
	defer f.Close()
	return f.GetRows(f.GetSheetName(0))
}

func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func findHeader(header []string, names []string) int {
	for i, h := range header {
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var (
	_ ports.PanelSource      = (*PanelLoader)(nil)
	_ ports.ProjectionSource = (*ProjectionLoader)(nil)
)
