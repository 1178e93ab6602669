package model

import "sort"

// GeographicalCode — код области в имени файла ENTSO-E.
// Каждому коду соответствует ровно одна страна (ISO 3166-1 alpha-2).
type GeographicalCode string

// geographicalCountries — таблица «код области → страна».
// Строится один раз, далее только чтение.
var geographicalCountries = map[GeographicalCode]string{
	"AL": "AL",
	"AT": "AT",
	"BA": "BA",
	"BE": "BE",
	"BG": "BG",
	"BY": "BY",
	"CH": "CH",
	"CZ": "CZ",
	"DE": "DE",
	"D1": "DE",
	"D2": "DE",
	"D4": "DE",
	"D7": "DE",
	"D8": "DE",
	"DK": "DK",
	"ES": "ES",
	"FR": "FR",
	"GB": "GB",
	"GR": "GR",
	"HR": "HR",
	"HU": "HU",
	"IT": "IT",
	"KS": "XK",
	"LT": "LT",
	"LU": "LU",
	"LV": "LV",
	"MA": "MA",
	"MD": "MD",
	"ME": "ME",
	"MK": "MK",
	"NL": "NL",
	"NO": "NO",
	"PL": "PL",
	"PT": "PT",
	"RO": "RO",
	"RS": "RS",
	"RU": "RU",
	"SE": "SE",
	"SI": "SI",
	"SK": "SK",
	"TR": "TR",
	"UA": "UA",
	"UX": "UA",
}

// Country возвращает страну для кода или пустую строку для неизвестного кода.
func (g GeographicalCode) Country() string {
	return geographicalCountries[g]
}

// IsKnown сообщает, есть ли код в таблице.
func (g GeographicalCode) IsKnown() bool {
	_, ok := geographicalCountries[g]
	return ok
}

// GeographicalCodes возвращает все известные коды в лексикографическом порядке.
func GeographicalCodes() []GeographicalCode {
	codes := make([]GeographicalCode, 0, len(geographicalCountries))
	for code := range geographicalCountries {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
