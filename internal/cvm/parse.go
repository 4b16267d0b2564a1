package cvm

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/faustostangler/FL2-sub000/internal/clean"
	"github.com/faustostangler/FL2-sub000/internal/model"
)

// newDocument parses an HTML body. The portal serves Latin-1 pages;
// anything that is not valid UTF-8 is decoded as ISO-8859-1 first.
func newDocument(body []byte) (*goquery.Document, error) {
	if !utf8.Valid(body) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
		if err != nil {
			return nil, eris.Wrap(err, "cvm: decode latin-1 body")
		}
		body = decoded
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	return doc, eris.Wrap(err, "cvm: parse html")
}

func elementText(doc *goquery.Document, id string) string {
	return strings.TrimSpace(doc.Find(id).First().Text())
}

// splitCategory parses "<type…> <year> <version>" as shown in
// #lblDescricaoCategoria, e.g. "Informações Trimestrais 2023 1.0".
func splitCategory(s string) (nsdType string, version string) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return strings.Join(fields, " "), ""
	}
	version = fields[len(fields)-1]
	rest := fields[:len(fields)-1]
	// drop the trailing year token when present
	if last := rest[len(rest)-1]; len(last) == 4 && isDigits(last) {
		rest = rest[:len(rest)-1]
	}
	return strings.Join(rest, " "), version
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// capital-composition element ids, fixed by the portal.
const (
	idSharesON   = "#QtdAordCapiItgz_1"
	idSharesPN   = "#QtdAprfCapiItgz_1"
	idTreasuryON = "#QtdAordTeso_1"
	idTreasuryPN = "#QtdAprfTeso_1"
)

// parseCapital extracts the four share-count rows from the capital
// composition frame. The first cell of the frame's table carries a
// "Mil" marker when counts are expressed in thousands.
func parseCapital(body []byte) ([]model.StatementRow, error) {
	doc, err := newDocument(body)
	if err != nil {
		return nil, err
	}

	scale := 1.0
	if cell := strings.TrimSpace(doc.Find("table td").First().Text()); strings.Contains(cell, "Mil") {
		scale = 1000
	}

	specs := []struct {
		id          string
		account     string
		description string
	}{
		{idSharesON, model.AccountSharesON, "Ações Ordinárias em Circulação"},
		{idSharesPN, model.AccountSharesPN, "Ações Preferenciais em Circulação"},
		{idTreasuryON, model.AccountTreasuryON, "Ações Ordinárias em Tesouraria"},
		{idTreasuryPN, model.AccountTreasuryPN, "Ações Preferenciais em Tesouraria"},
	}

	var rows []model.StatementRow
	for _, sp := range specs {
		text := elementText(doc, sp.id)
		if text == "" {
			zap.L().Warn("cvm: capital element missing", zap.String("id", sp.id))
			continue
		}
		value, err := clean.Number(text)
		if err != nil {
			zap.L().Warn("cvm: capital value unparsable",
				zap.String("id", sp.id), zap.String("text", text), zap.Error(err))
			continue
		}
		rows = append(rows, model.StatementRow{
			Account:     sp.account,
			Description: sp.description,
			Value:       value * scale,
		})
	}
	return rows, nil
}

// parseFrameTable extracts (account, description, value) rows from the
// generic statement table. The title row carries the thousands marker.
func parseFrameTable(body []byte) ([]model.StatementRow, error) {
	doc, err := newDocument(body)
	if err != nil {
		return nil, err
	}

	table := doc.Find("#ctl00_cphPopUp_tbDados")
	if table.Length() == 0 {
		return nil, eris.New("cvm: statement table not found")
	}

	scale := 1.0
	if title := elementText(doc, "#TituloTabelaSemBorda"); strings.Contains(title, "Mil") {
		scale = 1000
	}

	var rows []model.StatementRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 3 {
			return
		}
		account := strings.TrimSpace(cells.Eq(0).Text())
		description := strings.TrimSpace(cells.Eq(1).Text())
		raw := strings.TrimSpace(cells.Eq(2).Text())
		if account == "" || raw == "" {
			return
		}
		value, err := clean.Number(raw)
		if err != nil {
			zap.L().Warn("cvm: statement value unparsable",
				zap.String("account", account), zap.String("text", raw), zap.Error(err))
			return
		}
		rows = append(rows, model.StatementRow{
			Account:     account,
			Description: description,
			Value:       value * scale,
		})
	})
	return rows, nil
}
