package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

func TestParseGeneral(t *testing.T) {
	t.Parallel()

	general, err := ParseGeneral(fixture(t, "general.html"))
	require.NoError(t, err)

	assert.Equal(t, 4, general.ApplicationsCount)
	assert.Equal(t, []string{
		"tender_id", "tender_name", "tender_status", "publication_date", "срок_подачи_замечаний",
	}, general.AdvertView.Keys())
	name, _ := general.AdvertView.Text("tender_name")
	assert.Equal(t, "Закупка X", name)

	organizer, ok := general.GeneralInfo.Text(tender.KeyOrganizerName)
	require.True(t, ok)
	assert.Equal(t, "123456 ООО Ромашка", organizer)
	attrs, _ := general.GeneralInfo.Get(tender.KeyAttributes)
	assert.Equal(t, []string{"Закупка среди ОВИ", "Без НДС"}, attrs)
	assert.False(t, general.GeneralInfo.Has("только_заголовок"))

	rep, _ := general.Organizer.Text("representative_name")
	assert.Equal(t, "ИвановИванИванович", rep)
	phone, _ := general.Organizer.Text("контактный_телефон")
	assert.Equal(t, "+7 700 000 00 00", phone)
}

func TestParseGeneralDefaultsApplicationsCount(t *testing.T) {
	t.Parallel()

	page := `<div class="panel-body"></div><div class="panel-body"><table></table><table></table></div>`
	general, err := ParseGeneral(strings.NewReader(page))
	require.NoError(t, err)
	assert.Zero(t, general.ApplicationsCount)
	assert.Zero(t, general.AdvertView.Len())
}

func TestParseGeneralMissingPanels(t *testing.T) {
	t.Parallel()

	_, err := ParseGeneral(strings.NewReader(`<div class="panel-body"></div>`))
	require.ErrorIs(t, err, ErrStructure)

	_, err = ParseGeneral(strings.NewReader(`<div class="panel-body"></div><div class="panel-body"><table></table></div>`))
	require.ErrorIs(t, err, ErrStructure)
}

func TestAttributeListFallbacks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cell string
		want []string
	}{
		{`<td><ul><li>A</li><li>B</li></ul></td>`, []string{"A", "B"}},
		{`<td>  Единственный признак </td>`, []string{"Единственный признак"}},
		{`<td>   </td>`, nil},
	}
	for _, tc := range cases {
		page := fmt.Sprintf(`<div class="panel-body"></div><div class="panel-body">
			<table><tr><th>Признаки</th>%s</tr></table><table></table></div>`, tc.cell)
		general, err := ParseGeneral(strings.NewReader(page))
		require.NoError(t, err)
		v, ok := general.GeneralInfo.Get(tender.KeyAttributes)
		require.True(t, ok)
		if tc.want == nil {
			assert.Nil(t, v)
			continue
		}
		assert.Equal(t, tc.want, v)
	}
}

func TestParseLots(t *testing.T) {
	t.Parallel()

	lots, err := ParseLots(fixture(t, "lots.html"))
	require.NoError(t, err)
	require.Len(t, lots, 2)

	first := lots[0]
	id, ok := first.LotID()
	require.True(t, ok)
	assert.Equal(t, "81234567", id)
	number, _ := first.LotNumber()
	assert.Equal(t, "81234567-ЗЦП1", number)
	assert.True(t, first.PrevPlan())
	assert.Equal(t, []string{
		"seq_num", "lot_id", "lot_number", "customer", "item_name",
		"unit_price", "quantity", "planned_amount", "lot_status", "prev_plan",
	}, first.Keys())

	second := lots[1]
	_, ok = second.LotID()
	assert.False(t, ok, "lot without the select control has no lot id")
	assert.False(t, second.PrevPlan())
	assert.Equal(t, 9, second.Len(), "cells beyond the header are ignored")
}

func TestParseLotsPreservesRowCountAndOrder(t *testing.T) {
	t.Parallel()

	for _, rows := range []int{2, 3, 7} {
		var b strings.Builder
		b.WriteString(`<div class="table-responsive"><table><tr><th>№ п/п</th><th>Наименование</th></tr>`)
		for i := 1; i <= rows; i++ {
			fmt.Fprintf(&b, `<tr><td>%d</td><td>item-%d</td></tr>`, i, i)
		}
		b.WriteString(`</table></div>`)

		lots, err := ParseLots(strings.NewReader(b.String()))
		require.NoError(t, err)
		require.Len(t, lots, rows)
		for i, lot := range lots {
			seq, _ := lot.Text("seq_num")
			assert.Equal(t, fmt.Sprint(i+1), seq)
		}
	}
}

func TestParseLotsMissingTable(t *testing.T) {
	t.Parallel()

	_, err := ParseLots(strings.NewReader(`<div>nothing</div>`))
	require.ErrorIs(t, err, ErrStructure)
}

func TestParseDocuments(t *testing.T) {
	t.Parallel()

	modals, err := ParseDocuments(fixture(t, "documents.html"))
	require.NoError(t, err)
	assert.Equal(t, []FileModal{{LotID: "15755249", DocumentID: "3357"}}, modals)
}

func TestParseDocumentsWithoutTechSpec(t *testing.T) {
	t.Parallel()

	page := `<table><tr><td>Проект договора</td><td><button onclick="actionModalShowFiles(1,2)"></button></td></tr></table>`
	modals, err := ParseDocuments(strings.NewReader(page))
	require.NoError(t, err)
	assert.Empty(t, modals)
	assert.NotNil(t, modals)
}

func TestParseDocumentsCollectsEveryMatchingRow(t *testing.T) {
	t.Parallel()

	page := `<table>
		<tr><td>ТЕХНИЧЕСКАЯ СПЕЦИФИКАЦИЯ лот 1</td><td><button onclick="actionModalShowFiles('7','8')"></button></td></tr>
		<tr><td>Техническая спецификация лот 2</td><td><button onclick="actionModalShowFiles(9,10)"></button></td></tr>
		<tr><td>Техническая спецификация без кнопки</td></tr>
	</table>`
	modals, err := ParseDocuments(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, []FileModal{{LotID: "7", DocumentID: "8"}, {LotID: "9", DocumentID: "10"}}, modals)
}

func TestParseFileModal(t *testing.T) {
	t.Parallel()

	files, err := ParseFileModal(fixture(t, "modal.html"), FileModal{LotID: "15755249", DocumentID: "3357"})
	require.NoError(t, err)
	assert.Equal(t, []tender.TechSpecFile{
		{LotID: "15755249", FileLink: "https://v3bl.goszakup.gov.kz/files/download_file/111/", FileName: "ТС бумага.pdf"},
		{LotID: "15755249", FileLink: "/files/download_file/112/", FileName: "ТС картридж.docx"},
	}, files)
}

func TestParseFileModalRowWithoutLink(t *testing.T) {
	t.Parallel()

	_, err := ParseFileModal(strings.NewReader(`<table><tr><td>1</td><td>no link</td></tr></table>`), FileModal{})
	require.True(t, errors.Is(err, ErrStructure))
}

func TestAssembleOrderAndDerivedFields(t *testing.T) {
	t.Parallel()

	general, err := ParseGeneral(fixture(t, "general.html"))
	require.NoError(t, err)
	lots, err := ParseLots(fixture(t, "lots.html"))
	require.NoError(t, err)
	files := []tender.TechSpecFile{{LotID: "1", FileLink: "https://x/f", FileName: "ТС.pdf"}}

	record := Assemble(general, lots, files)

	bin, ok := record.OrganizerBIN()
	require.True(t, ok)
	assert.Equal(t, "123456", bin)
	assert.Len(t, record.Lots(), 2)
	assert.Equal(t, files, record.TechSpecFiles())

	keys := record.Keys()
	require.GreaterOrEqual(t, len(keys), 4)
	assert.Equal(t, "tender_id", keys[0])
	assert.Equal(t, tender.KeyOrganizerBIN, keys[len(keys)-1])
	assert.Equal(t, tender.KeyTechSpecFiles, keys[len(keys)-2])
	assert.Equal(t, tender.KeyLotsInfo, keys[len(keys)-3])
	assert.Less(t, indexOf(keys, tender.KeyApplicationsCount), indexOf(keys, "procurement_method"))
	assert.Less(t, indexOf(keys, tender.KeyOrganizerName), indexOf(keys, "representative_name"))
}

func TestAssembleLaterBlocksWin(t *testing.T) {
	t.Parallel()

	general := General{
		AdvertView:  tender.NewFields(),
		GeneralInfo: tender.NewFields(),
		Organizer:   tender.NewFields(),
	}
	general.AdvertView.Set("email", "advert")
	general.GeneralInfo.Set("email", "general")
	general.Organizer.Set("email", "organizer")

	record := Assemble(general, nil, nil)
	email, _ := record.Text("email")
	assert.Equal(t, "organizer", email)
	_, ok := record.OrganizerBIN()
	assert.False(t, ok, "no organizer_name means no organizer_bin")

	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"organizer","applications_count":0,"lots_info":[],"techspec_files":[]}`, string(data))
}

func fixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
