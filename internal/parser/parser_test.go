package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

func TestEntsoe_Snapshot(t *testing.T) {
	r := DefaultRegistry()
	m := r.BuildMetadata("20200103_0915_SN5_D80.UCT", uuid.New(), "UCTE")

	if m.Type != model.TypeEntsoe {
		t.Fatalf("тип: хотели %s, получили %s", model.TypeEntsoe, m.Type)
	}
	if m.Format != "UCTE" {
		t.Errorf("формат: хотели UCTE, получили %s", m.Format)
	}
	e := m.Entsoe
	if e.ForecastDistance != 0 {
		t.Errorf("forecastDistance: хотели 0, получили %d", e.ForecastDistance)
	}
	if e.GeographicalCode != "D8" || e.Country() != "DE" {
		t.Errorf("география: хотели D8/DE, получили %s/%s", e.GeographicalCode, e.Country())
	}
	if e.Version != 0 {
		t.Errorf("версия: хотели 0, получили %d", e.Version)
	}
	want := time.Date(2020, 1, 3, 8, 15, 0, 0, time.UTC)
	if !e.Date.Equal(want) {
		t.Errorf("дата: хотели %v, получили %v", want, e.Date)
	}
}

func TestEntsoe_HoursAhead(t *testing.T) {
	info := DefaultRegistry().Parse("20200424_1330_135_CH2.UCT")
	if info.Type != model.TypeEntsoe {
		t.Fatalf("тип: хотели entsoe, получили %s", info.Type)
	}
	if info.Entsoe.ForecastDistance != 780 {
		t.Errorf("forecastDistance: хотели 780, получили %d", info.Entsoe.ForecastDistance)
	}
	if info.Entsoe.GeographicalCode != "CH" || info.Entsoe.Country() != "CH" {
		t.Errorf("география: хотели CH/CH, получили %s/%s", info.Entsoe.GeographicalCode, info.Entsoe.Country())
	}
	if info.Entsoe.Version != 2 {
		t.Errorf("версия: хотели 2, получили %d", info.Entsoe.Version)
	}
}

func TestForecastDistance(t *testing.T) {
	d := time.Date(2020, 4, 24, 13, 30, 0, 0, entsoeZone)
	tests := []struct {
		scope string
		want  int
	}{
		{"SN", 0},
		{"FO", 60*(6+13) + 30},
		{"2D", 1440 + 60*(6+13) + 30},
		{"01", 60},
		{"RE", 0},
	}
	for _, tt := range tests {
		if got := forecastDistance(tt.scope, d); got != tt.want {
			t.Errorf("%s: хотели %d, получили %d", tt.scope, tt.want, got)
		}
	}
}

func TestCgmes(t *testing.T) {
	r := DefaultRegistry()
	m := r.BuildMetadata("20200424T1330Z_2D_RTEFRANCE_001.zip", uuid.New(), "CGMES")

	if m.Type != model.TypeCgmes {
		t.Fatalf("тип: хотели cgmes, получили %s", m.Type)
	}
	c := m.Cgmes
	if c.BusinessProcess != "2D" {
		t.Errorf("businessProcess: хотели 2D, получили %s", c.BusinessProcess)
	}
	if c.TSO != "RTEFRANCE" {
		t.Errorf("tso: хотели RTEFRANCE, получили %s", c.TSO)
	}
	if c.Version != 1 {
		t.Errorf("версия: хотели 1, получили %d", c.Version)
	}
	want := time.Date(2020, 4, 24, 13, 30, 0, 0, time.UTC)
	if !c.Date.Equal(want) {
		t.Errorf("дата: хотели %v, получили %v", want, c.Date)
	}
}

func TestCgmes_UnknownActor(t *testing.T) {
	info := DefaultRegistry().Parse("20200424T1330Z_1D_NOBODY_003.zip")
	if info.Type != model.TypeCgmes {
		t.Fatalf("тип: хотели cgmes, получили %s", info.Type)
	}
	if info.Cgmes.TSO != model.TsoUndefined {
		t.Errorf("tso: хотели %s, получили %s", model.TsoUndefined, info.Cgmes.TSO)
	}
}

func TestRegistry_GenericFallback(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{
		"20200103_0915_SN5.UCT",
		"20200103_0915_SN5_ZZ0.UCT",
		"testCase.xiidm",
		"20201399_0915_SN5_D80.UCT",
	} {
		if _, ok := r.FindParser(name); ok {
			t.Errorf("%s: парсер не ожидался", name)
		}
		if info := r.Parse(name); info.Type != model.TypeGeneric {
			t.Errorf("%s: хотели generic, получили %s", name, info.Type)
		}
	}
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	always := &stubParser{name: "FIRST", info: model.GenericInfo()}
	r := NewRegistry(always, NewEntsoe())

	p, ok := r.FindParser("20200103_0915_SN5_D80.UCT")
	if !ok || p.Name() != "FIRST" {
		t.Fatalf("ожидался первый зарегистрированный парсер, получен %v", p)
	}

	names := []string{}
	for _, p := range DefaultRegistry().Parsers() {
		names = append(names, p.Name())
	}
	if len(names) != 2 || names[0] != "ENTSOE" || names[1] != "CGMES" {
		t.Errorf("порядок реестра: %v", names)
	}
}

func TestMustParse_PanicsOnMismatch(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrParseNotImplemented) {
			t.Errorf("ожидалась паника с ErrParseNotImplemented, получено %v", r)
		}
	}()
	MustParse(NewCgmes(), "testCase.xiidm")
}

func TestParse_NoMatchReturnsFalse(t *testing.T) {
	if _, ok := NewEntsoe().Parse("20200424T1330Z_2D_RTEFRANCE_001.zip"); ok {
		t.Error("ENTSOE не должен разбирать имя CGMES")
	}
	if _, ok := NewCgmes().Parse("20200103_0915_SN5_D80.UCT"); ok {
		t.Error("CGMES не должен разбирать имя ENTSOE")
	}
}

// stubParser распознаёт любое имя.
type stubParser struct {
	name string
	info model.FileNameInfo
}

func (s *stubParser) Name() string                            { return s.name }
func (s *stubParser) Exists(string) bool                      { return true }
func (s *stubParser) Parse(string) (model.FileNameInfo, bool) { return s.info, true }
