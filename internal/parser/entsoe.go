package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// entsoeDateLayout — yyyyMMdd_HHmm.
const entsoeDateLayout = "20060102_1504"

// entsoeZone — гражданское время, в котором записаны даты ENTSO-E.
var entsoeZone = mustLoadLocation("Europe/Brussels")

// Entsoe — парсер имён вида yyyyMMdd_HHmm_SSS_GGV.
// SSS — код горизонта прогноза, GG — географический код, V — версия.
type Entsoe struct {
	pattern *regexp.Regexp
}

// NewEntsoe создаёт парсер. Альтернатива географических кодов в регулярном
// выражении строится из таблицы model.GeographicalCodes, поэтому
// совпадение с шаблоном гарантирует успешный разбор.
func NewEntsoe() *Entsoe {
	codes := model.GeographicalCodes()
	alt := make([]string, len(codes))
	for i, c := range codes {
		alt[i] = regexp.QuoteMeta(string(c))
	}
	expr := `^(\d{8}_\d{4})_([A-Za-z0-9]{3})_(` + strings.Join(alt, "|") + `)(\d)`
	return &Entsoe{pattern: regexp.MustCompile(expr)}
}

func (p *Entsoe) Name() string { return "ENTSOE" }

func (p *Entsoe) Exists(baseName string) bool {
	_, ok := p.Parse(baseName)
	return ok
}

func (p *Entsoe) Parse(baseName string) (model.FileNameInfo, bool) {
	m := p.pattern.FindStringSubmatch(baseName)
	if m == nil {
		return model.FileNameInfo{}, false
	}

	date, err := time.ParseInLocation(entsoeDateLayout, m[1], entsoeZone)
	if err != nil {
		return model.FileNameInfo{}, false
	}
	version, _ := strconv.Atoi(m[4])

	return model.FileNameInfo{
		Type: model.TypeEntsoe,
		Entsoe: &model.EntsoeInfo{
			Date:             date.UTC(),
			ForecastDistance: forecastDistance(m[2][:2], date),
			GeographicalCode: model.GeographicalCode(m[3]),
			Version:          version,
		},
	}, true
}

// forecastDistance вычисляет дистанцию прогноза в минутах по первым двум
// символам кода горизонта и часу/минуте описываемого момента.
// FO — прогноз на сутки вперёд, сформированный в 18:00 накануне;
// 2D — на двое суток вперёд.
func forecastDistance(scope string, date time.Time) int {
	switch scope {
	case "SN":
		return 0
	case "FO":
		return 60*(6+date.Hour()) + date.Minute()
	case "2D":
		return 24*60 + 60*(6+date.Hour()) + date.Minute()
	}
	hours, err := strconv.Atoi(scope)
	if err != nil {
		return 0
	}
	return 60 * hours
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}
