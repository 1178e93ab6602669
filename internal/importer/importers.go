package importer

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLimit — сколько байт записи читается для проверки содержимого.
const sniffLimit = 8 << 10

// Importer определяет, может ли он импортировать содержимое представления.
type Importer interface {
	// Format — имя формата (CGMES, XIIDM, UCTE, ...)
	Format() string
	// Exists сообщает, распознан ли кейс этим импортёром.
	Exists(view ArchiveView) bool
}

// head читает начало записи.
func head(view ArchiveView, name string) []byte {
	r, err := view.Open(name)
	if err != nil {
		return nil
	}
	defer r.Close()
	buf, _ := io.ReadAll(io.LimitReader(r, sniffLimit))
	return buf
}

// firstByExt возвращает первую запись с одним из расширений (без учёта регистра).
func firstByExt(view ArchiveView, exts ...string) (string, bool) {
	for _, ext := range exts {
		if view.ExistsExt("", ext) {
			return view.BaseName() + "." + ext, true
		}
		if up := strings.ToUpper(ext); view.ExistsExt("", up) {
			return view.BaseName() + "." + up, true
		}
	}
	return "", false
}

// cgmesImporter — zip с профилем EQ в формате CIM/XML.
type cgmesImporter struct{}

var cgmesEquipment = regexp.MustCompile(`(?i)_EQ(_[A-Za-z0-9]+)*\.xml$`)

func (cgmesImporter) Format() string { return "CGMES" }

func (cgmesImporter) Exists(view ArchiveView) bool {
	for _, name := range view.ListNames(cgmesEquipment) {
		data := head(view, name)
		if isA(mimetype.Detect(data), "text/xml") && bytes.Contains(data, []byte("iec.ch/TC57")) {
			return true
		}
	}
	return false
}

// xiidmImporter — XML-сериализация IIDM.
type xiidmImporter struct{}

func (xiidmImporter) Format() string { return "XIIDM" }

func (xiidmImporter) Exists(view ArchiveView) bool {
	name, ok := firstByExt(view, "xiidm", "iidm", "xml")
	if !ok {
		return false
	}
	data := head(view, name)
	return isA(mimetype.Detect(data), "text/xml") && bytes.Contains(data, []byte("powsybl.org/schema/iidm"))
}

// ucteImporter — текстовый формат UCTE-DEF: блок комментариев ##C, узлы ##N.
type ucteImporter struct{}

func (ucteImporter) Format() string { return "UCTE" }

func (ucteImporter) Exists(view ArchiveView) bool {
	name, ok := firstByExt(view, "uct")
	if !ok {
		return false
	}
	data := head(view, name)
	if !isA(mimetype.Detect(data), "text/plain") {
		return false
	}
	return bytes.HasPrefix(data, []byte("##C")) || bytes.HasPrefix(data, []byte("##N"))
}

// matpowerImporter — бинарный MAT-файл или текстовый m-файл с mpc.bus.
type matpowerImporter struct{}

func (matpowerImporter) Format() string { return "MATPOWER" }

func (matpowerImporter) Exists(view ArchiveView) bool {
	if name, ok := firstByExt(view, "mat"); ok {
		return isA(mimetype.Detect(head(view, name)), "application/x-matlab-data")
	}
	if name, ok := firstByExt(view, "m"); ok {
		return bytes.Contains(head(view, name), []byte("mpc.bus"))
	}
	return false
}

// ieeeCdfImporter — IEEE Common Data Format.
type ieeeCdfImporter struct{}

func (ieeeCdfImporter) Format() string { return "IEEE-CDF" }

func (ieeeCdfImporter) Exists(view ArchiveView) bool {
	name, ok := firstByExt(view, "txt", "cdf")
	if !ok {
		return false
	}
	return bytes.Contains(head(view, name), []byte("BUS DATA FOLLOW"))
}

// psseImporter — PSS/E RAW (текст) или RAWX (JSON).
type psseImporter struct{}

func (psseImporter) Format() string { return "PSS/E" }

func (psseImporter) Exists(view ArchiveView) bool {
	if name, ok := firstByExt(view, "rawx"); ok {
		data := head(view, name)
		return isA(mimetype.Detect(data), "application/json") && bytes.Contains(data, []byte(`"network"`))
	}
	name, ok := firstByExt(view, "raw")
	if !ok {
		return false
	}
	// Первая запись case identification: IC, SBASE, ...
	sc := bufio.NewScanner(bytes.NewReader(head(view, name)))
	if !sc.Scan() {
		return false
	}
	fields := strings.Split(sc.Text(), ",")
	if len(fields) < 2 {
		return false
	}
	ic := strings.TrimSpace(fields[0])
	return ic == "0" || ic == "1"
}
