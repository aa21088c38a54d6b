package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		name    string
		cell    string
		set     bool
		ref     string
		literal float64
		wantErr bool
	}{
		{name: "blank", cell: "  "},
		{name: "none", cell: "None"},
		{name: "literal", cell: "495", set: true, literal: 495},
		{name: "negative literal", cell: "-12.5", set: true, literal: -12.5},
		{name: "reference", cell: "30MBA10CT001XQ01", set: true, ref: "30MBA10CT001XQ01"},
		{name: "free text", cell: "see note", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseThreshold(tt.cell)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseThreshold(%q) error = %v, wantErr %v", tt.cell, err, tt.wantErr)
			}
			if got.IsSet() != tt.set {
				t.Fatalf("IsSet() = %v, want %v", got.IsSet(), tt.set)
			}
			if got.Ref() != tt.ref {
				t.Errorf("Ref() = %q, want %q", got.Ref(), tt.ref)
			}
			if v, ok := got.Literal(); ok && v != tt.literal {
				t.Errorf("Literal() = %v, want %v", v, tt.literal)
			}
		})
	}
}

func TestThresholdResolve(t *testing.T) {
	values := map[string]float64{"REF": 42}

	if v, ok := ReferenceThreshold("REF").Resolve(values); !ok || v != 42 {
		t.Errorf("reference Resolve = (%v, %v), want (42, true)", v, ok)
	}
	if _, ok := ReferenceThreshold("MISSING").Resolve(values); ok {
		t.Error("unresolved reference should behave as absent")
	}
	if _, ok := (Threshold{}).Resolve(values); ok {
		t.Error("absent threshold should not resolve")
	}
	if v, ok := LiteralThreshold(7).Resolve(nil); !ok || v != 7 {
		t.Errorf("literal Resolve = (%v, %v), want (7, true)", v, ok)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		cell string
		want float64
	}{
		{"5MW/s", 5},
		{"0.5 ℃/s", 0.5},
		{"2mm/s²", 2},
		{"10%/s", 10},
		{"3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			got, err := parseRate(tt.cell)
			if err != nil {
				t.Fatalf("parseRate(%q) error: %v", tt.cell, err)
			}
			if got == nil || *got != tt.want {
				t.Errorf("parseRate(%q) = %v, want %v", tt.cell, got, tt.want)
			}
		})
	}

	if got, err := parseRate(""); err != nil || got != nil {
		t.Errorf("parseRate(\"\") = (%v, %v), want (nil, nil)", got, err)
	}
	if _, err := parseRate("fast"); err == nil {
		t.Error("parseRate(\"fast\") should fail")
	}
}

func TestParseSafeRange(t *testing.T) {
	tests := []struct {
		cell    string
		lower   float64
		upper   float64
		wantErr bool
	}{
		{cell: "100-200", lower: 100, upper: 200},
		{cell: "100 ~ 200", lower: 100, upper: 200},
		{cell: "0.5至1.5", lower: 0.5, upper: 1.5},
		{cell: "10—20", lower: 10, upper: 20},
		{cell: "10﹣20", lower: 10, upper: 20},
		{cell: "200-100", wantErr: true},
		{cell: "100-100", wantErr: true},
		{cell: "100", wantErr: true},
		{cell: "-5~5", lower: -5, upper: 5},
		{cell: "-20--10", lower: -20, upper: -10},
		{cell: "-0.5 至 0.5", lower: -0.5, upper: 0.5},
		{cell: "-10--20", wantErr: true},
		{cell: "1-2-3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			got, err := parseSafeRange(tt.cell)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSafeRange(%q) error = %v, wantErr %v", tt.cell, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Lower != tt.lower || got.Upper != tt.upper {
				t.Errorf("parseSafeRange(%q) = %+v, want %v-%v", tt.cell, got, tt.lower, tt.upper)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	for _, cell := range []string{"需要", "true", "YES", "1"} {
		if !parseFlag(cell) {
			t.Errorf("parseFlag(%q) = false, want true", cell)
		}
	}
	for _, cell := range []string{"", "不需要", "no", "0"} {
		if parseFlag(cell) {
			t.Errorf("parseFlag(%q) = true, want false", cell)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList("A，B, C  A\tD")
	want := []string{"A", "B", "C", "D"}
	if len(got) != len(want) {
		t.Fatalf("splitList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func hasDefect(c *Catalog, pointID, field string) bool {
	for _, d := range c.Defects() {
		if d.PointID == pointID && d.Field == field {
			return true
		}
	}
	return false
}

func TestBuild_ReferencesAndOrdering(t *testing.T) {
	raws := []RawPoint{
		{ID: "P1", Name: "load", H: "400", HH: "450", HHH: "495"},
		{ID: "P2", Name: "vibration", H: "P1", HH: "UNKNOWN"},
		{ID: "P3", Name: "inverted", H: "100", HH: "50"},
		{ID: "P1", Name: "duplicate"},
		{ID: ""},
	}

	c, err := Build(raws, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	p2, _ := c.Get("P2")
	if p2.Thresholds.H.Ref() != "P1" {
		t.Errorf("P2 H ref = %q, want P1", p2.Thresholds.H.Ref())
	}
	if p2.Thresholds.HH.IsSet() {
		t.Error("unknown reference should be dropped")
	}
	if !hasDefect(c, "P2", LevelHH) {
		t.Error("expected defect for unknown reference")
	}

	p3, _ := c.Get("P3")
	if v, _ := p3.Thresholds.HH.Literal(); v != 50 {
		t.Errorf("inverted thresholds must not be repaired, HH = %v", v)
	}
	if !hasDefect(c, "P3", LevelHH) {
		t.Error("expected ordering defect for P3")
	}
	if !hasDefect(c, "P1", "id") {
		t.Error("expected duplicate ID defect")
	}
	if !hasDefect(c, "#5", "id") {
		t.Error("expected missing ID defect")
	}

	strict, err := Build(raws, true)
	if err != nil {
		t.Fatalf("Build strict: %v", err)
	}
	if _, ok := strict.Get("P3"); ok {
		t.Error("strict catalog should exclude defective P3")
	}
	if _, ok := strict.Get("P1"); !ok {
		t.Error("strict catalog should keep P1")
	}
}

func TestBuild_Correlations(t *testing.T) {
	raws := []RawPoint{
		{ID: "GT_LOAD", Name: "燃机功率", Description: "gas turbine load",
			Positive: "TT_EXHAUST_1，排气温度2 exhaust_1", Negative: "fuel valve, 排气"},
		{ID: "TT_EXHAUST_1", Name: "排气温度1"},
		{ID: "TT_EXHAUST_2", Name: "排气温度2"},
		{ID: "FUEL_VALVE", Name: "燃料阀", Description: "fuel valve"},
	}

	c, err := Build(raws, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p, _ := c.Get("GT_LOAD")

	wantPos := []string{"TT_EXHAUST_1", "TT_EXHAUST_2"}
	if len(p.Correlations.Positive) != len(wantPos) {
		t.Fatalf("Positive = %v, want %v", p.Correlations.Positive, wantPos)
	}
	for i, id := range wantPos {
		if p.Correlations.Positive[i] != id {
			t.Errorf("Positive[%d] = %q, want %q", i, p.Correlations.Positive[i], id)
		}
	}

	// "fuel valve" splits on whitespace and both halves match FUEL_VALVE by
	// ID; "排气" only matches display names and stays below the fuzzy cutoff.
	if len(p.Correlations.Negative) != 1 || p.Correlations.Negative[0] != "FUEL_VALVE" {
		t.Errorf("Negative = %v, want [FUEL_VALVE]", p.Correlations.Negative)
	}
	if !hasDefect(c, "GT_LOAD", "negative_correlations") {
		t.Error("expected unresolved correlation defect")
	}
}

func TestBuild_DetectionDefects(t *testing.T) {
	c, err := Build([]RawPoint{{ID: "P1", FluctuationEnabled: "需要", MutationEnabled: "需要", MutationLimit: "20MW/s"}}, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p, _ := c.Get("P1")
	if !p.Detection.FluctuationEnabled || !p.Detection.MutationEnabled {
		t.Fatalf("detection flags = %+v", p.Detection)
	}
	if p.Detection.MutationLimit == nil || *p.Detection.MutationLimit != 20 {
		t.Errorf("MutationLimit = %v, want 20", p.Detection.MutationLimit)
	}
	if !hasDefect(c, "P1", "fluctuation_rate_limit") {
		t.Error("expected defect for fluctuation detection without a limit")
	}
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build([]RawPoint{{ID: ""}}, false)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("Build error = %v, want ErrEmpty", err)
	}
}

func TestLoad_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.xlsx")

	f := excelize.NewFile()
	rows := [][]any{
		{"序号", "kks", "所属系统", "设备/测点名称", "单位", "H告警值", "HH告警值", "HHH告警值", "测点上限", "波动检测", "波动幅度", "趋势预测", "运行安全区间", "正相关测点"},
		{1, "GT_LOAD", "燃机", "燃机功率", "MW", 400, 450, 495, 520, "需要", "5MW/s", "需要", "300~480", "TT_EXHAUST_1"},
		{},
		{2, "TT_EXHAUST_1", "燃机", "排气温度1", "℃", 600, 620, 650, "", "", "", "", "", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	c, err := Load(Config{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	p, ok := c.Get("GT_LOAD")
	if !ok {
		t.Fatal("GT_LOAD missing")
	}
	if p.Unit != "MW" || p.DisplayName != "燃机功率" || p.System != "燃机" {
		t.Errorf("identity = %q %q %q", p.Unit, p.DisplayName, p.System)
	}
	if v, _ := p.Thresholds.HHH.Literal(); v != 495 {
		t.Errorf("HHH = %v, want 495", v)
	}
	if p.Protection.Upper == nil || *p.Protection.Upper != 520 {
		t.Errorf("upper limit = %v, want 520", p.Protection.Upper)
	}
	if !p.Detection.FluctuationEnabled || *p.Detection.FluctuationRateLimit != 5 {
		t.Errorf("detection = %+v", p.Detection)
	}
	if p.SafeRange == nil || p.SafeRange.Lower != 300 || p.SafeRange.Upper != 480 {
		t.Errorf("safe range = %+v", p.SafeRange)
	}
	if len(p.Correlations.Positive) != 1 || p.Correlations.Positive[0] != "TT_EXHAUST_1" {
		t.Errorf("positive correlations = %v", p.Correlations.Positive)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.yaml")
	doc := `points:
  - id: GT_LOAD
    name: Gas turbine load
    unit: MW
    h: 400
    hh: 450
    hhh: 495
    fluctuation_enabled: true
    fluctuation_rate_limit: 5
  - id: GT_LOAD_LIMIT
    unit: MW
  - id: GT_SPEED
    h: GT_LOAD_LIMIT
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(Config{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	p, _ := c.Get("GT_LOAD")
	if v, _ := p.Thresholds.HH.Literal(); v != 450 {
		t.Errorf("HH = %v, want 450", v)
	}
	if !p.Detection.FluctuationEnabled {
		t.Error("fluctuation detection should be enabled")
	}
	speed, _ := c.Get("GT_SPEED")
	if speed.Thresholds.H.Ref() != "GT_LOAD_LIMIT" {
		t.Errorf("GT_SPEED H ref = %q", speed.Thresholds.H.Ref())
	}
	if len(c.Defects()) != 0 {
		t.Errorf("unexpected defects: %v", c.Defects())
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	if _, err := Load(Config{Path: "points.csv"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
