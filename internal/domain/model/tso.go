package model

// TsoCode — код системного оператора (TSO), сформировавшего файл CGMES.
type TsoCode string

// TsoUndefined — актор из имени файла отсутствует в таблице.
const TsoUndefined TsoCode = "UNDEFINED"

// sourcingActors — таблица «sourcing actor из имени файла → TSO».
// Несколько написаний одного оператора отображаются в один код.
var sourcingActors = map[string]TsoCode{
	"50HERTZ":        "50HERTZ",
	"AMPRION":        "AMPRION",
	"APG":            "APG",
	"AST":            "AST",
	"CEPS":           "CEPS",
	"CGES":           "CGES",
	"CREOS":          "CREOS",
	"EIRGRID":        "EIRGRID",
	"ELERING":        "ELERING",
	"ELES":           "ELES",
	"ELIA":           "ELIA",
	"EMS":            "EMS",
	"ENERGINET":      "ENERGINET",
	"ESO":            "ESO",
	"FINGRID":        "FINGRID",
	"HOPS":           "HOPS",
	"IPTO":           "IPTO",
	"KOSTT":          "KOSTT",
	"LITGRID":        "LITGRID",
	"MAVIR":          "MAVIR",
	"MEPSO":          "MEPSO",
	"MOLDELECTRICA":  "MOLDELECTRICA",
	"NGESO":          "NGESO",
	"NOSBIH":         "NOSBIH",
	"OST":            "OST",
	"PSE":            "PSE",
	"REE":            "REE",
	"REN":            "REN",
	"RTE":            "RTEFRANCE",
	"RTEFRANCE":      "RTEFRANCE",
	"SEPS":           "SEPS",
	"SONI":           "SONI",
	"STATNETT":       "STATNETT",
	"SVK":            "SVK",
	"SWISSGRID":      "SWISSGRID",
	"TEIAS":          "TEIAS",
	"TENNETGMBH":     "TENNETGMBH",
	"TENNETTSO":      "TENNETTSO",
	"TERNA":          "TERNA",
	"TRANSELECTRICA": "TRANSELECTRICA",
	"TRANSNETBW":     "TRANSNETBW",
	"TTG":            "TENNETGMBH",
	"UKRENERGO":      "UKRENERGO",
}

// LookupTso возвращает код TSO для актора или TsoUndefined.
func LookupTso(actor string) TsoCode {
	if code, ok := sourcingActors[actor]; ok {
		return code
	}
	return TsoUndefined
}
