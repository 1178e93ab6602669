package parser

import (
	"regexp"
	"strconv"
	"time"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// cgmesDateLayout — yyyyMMdd'T'HHmm'Z'.
const cgmesDateLayout = "20060102T1504Z"

var cgmesPattern = regexp.MustCompile(`^(\d{8}T\d{4}Z)_([A-Za-z0-9]{2}[A-Za-z0-9]*)_([^_]+)_(\d{3})`)

// Cgmes — парсер имён вида yyyyMMddTHHmmZ_BP_ACTOR_VVV.
type Cgmes struct{}

func NewCgmes() *Cgmes { return &Cgmes{} }

func (p *Cgmes) Name() string { return "CGMES" }

func (p *Cgmes) Exists(baseName string) bool {
	_, ok := p.Parse(baseName)
	return ok
}

func (p *Cgmes) Parse(baseName string) (model.FileNameInfo, bool) {
	m := cgmesPattern.FindStringSubmatch(baseName)
	if m == nil {
		return model.FileNameInfo{}, false
	}

	date, err := time.ParseInLocation(cgmesDateLayout, m[1], time.UTC)
	if err != nil {
		return model.FileNameInfo{}, false
	}
	version, _ := strconv.Atoi(m[4])

	return model.FileNameInfo{
		Type: model.TypeCgmes,
		Cgmes: &model.CgmesInfo{
			Date:            date,
			BusinessProcess: m[2][:2],
			TSO:             model.LookupTso(m[3]),
			Version:         version,
		},
	}, true
}
