package catalog

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/xuri/excelize/v2"
)

// Config locates the point table.
type Config struct {
	Path   string `mapstructure:"path"`
	Sheet  string `mapstructure:"sheet"`
	Strict bool   `mapstructure:"strict"`
}

// DefaultConfig returns the catalog configuration used when none is given.
func DefaultConfig() Config {
	return Config{Path: "configs/points.yaml"}
}

// headerAliases maps point table column headers, in the plant's Chinese
// layout and in English, to RawPoint fields.
var headerAliases = map[string]string{
	"kks": "id", "id": "id", "point_id": "id",
	"序号": "index", "index": "index",
	"所属系统": "system", "system": "system",
	"设备/测点名称": "name", "name": "name",
	"点含义": "description", "description": "description",
	"单位": "unit", "unit": "unit",
	"运行安全区间": "safe_range", "safe_range": "safe_range",
	"lll告警值": "lll", "lll": "lll",
	"ll告警值": "ll", "ll": "ll",
	"l告警值": "l", "l": "l",
	"h告警值": "h", "h": "h",
	"hh告警值": "hh", "hh": "hh",
	"hhh告警值": "hhh", "hhh": "hhh",
	"测点下限": "lower_limit", "lower_limit": "lower_limit",
	"测点上限": "upper_limit", "upper_limit": "upper_limit",
	"波动检测": "fluctuation_enabled", "fluctuation_enabled": "fluctuation_enabled",
	"波动幅度": "fluctuation_rate_limit", "fluctuation_rate_limit": "fluctuation_rate_limit",
	"突变检测": "mutation_enabled", "mutation_enabled": "mutation_enabled",
	"突变幅度": "mutation_limit", "mutation_limit": "mutation_limit",
	"趋势预测": "trend_prediction", "trend_prediction": "trend_prediction",
	"正相关测点": "positive_correlations", "positive_correlations": "positive_correlations",
	"负相关测点": "negative_correlations", "negative_correlations": "negative_correlations",
}

// Load reads the point table named by cfg.Path. Workbooks (.xlsx) are read
// with excelize; YAML and JSON files are read with viper from a top-level
// "points" list.
func Load(cfg Config) (*Catalog, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("catalog path is empty")
	}
	var (
		raws []RawPoint
		err  error
	)
	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".xlsx", ".xlsm":
		raws, err = readWorkbook(cfg.Path, cfg.Sheet)
	case ".yaml", ".yml", ".json", ".toml":
		raws, err = readDocument(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported point table format %q", filepath.Ext(cfg.Path))
	}
	if err != nil {
		return nil, err
	}
	return Build(raws, cfg.Strict)
}

func readDocument(path string) ([]RawPoint, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read point table %s: %w", path, err)
	}
	var raws []RawPoint
	if err := v.UnmarshalKey("points", &raws); err != nil {
		return nil, fmt.Errorf("decode point table %s: %w", path, err)
	}
	return raws, nil
}

func readWorkbook(path, sheet string) ([]RawPoint, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open point table %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	return rowsToRaw(rows)
}

// rowsToRaw maps a header row plus data rows onto RawPoints. Rows with an
// empty ID cell are skipped as blank lines.
func rowsToRaw(rows [][]string) ([]RawPoint, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("point table has no header row")
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if field, ok := headerAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["id"]; !ok {
		return nil, fmt.Errorf("point table has no point ID column")
	}

	raws := make([]RawPoint, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cell := func(field string) string {
			i, ok := cols[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if cell("id") == "" {
			continue
		}
		index, _ := strconv.Atoi(cell("index"))
		raws = append(raws, RawPoint{
			Index:                index,
			ID:                   cell("id"),
			System:               cell("system"),
			Name:                 cell("name"),
			Description:          cell("description"),
			Unit:                 cell("unit"),
			SafeRange:            cell("safe_range"),
			LLL:                  cell("lll"),
			LL:                   cell("ll"),
			L:                    cell("l"),
			H:                    cell("h"),
			HH:                   cell("hh"),
			HHH:                  cell("hhh"),
			LowerLimit:           cell("lower_limit"),
			UpperLimit:           cell("upper_limit"),
			FluctuationEnabled:   cell("fluctuation_enabled"),
			FluctuationRateLimit: cell("fluctuation_rate_limit"),
			MutationEnabled:      cell("mutation_enabled"),
			MutationLimit:        cell("mutation_limit"),
			TrendPrediction:      cell("trend_prediction"),
			Positive:             cell("positive_correlations"),
			Negative:             cell("negative_correlations"),
		})
	}
	return raws, nil
}
