package extract

import "github.com/JakeFAU/tender-analyzer/internal/tender"

// advertViewLabels covers the form-group block at the top of the general tab.
var advertViewLabels = map[string]string{
	"Номер объявления":             tender.KeyTenderID,
	"Наименование объявления":      "tender_name",
	"Статус объявления":            "tender_status",
	"Дата публикации объявления":   "publication_date",
	"Срок начала приема заявок":    "application_start_date",
	"Срок окончания приема заявок": "application_end_date",
}

var generalInfoLabels = map[string]string{
	"Способ проведения закупки": "procurement_method",
	"Тип закупки":               "procurement_type",
	"Вид предмета закупок":      "subject_type",
	"Организатор":               tender.KeyOrganizerName,
	"Юр. адрес организатора":    "organizer_legal_address",
	"Кол-во лотов в объявлении": "lot_count",
	"Сумма закупки":             "procurement_amount",
	"Признаки":                  tender.KeyAttributes,
}

var organizerLabels = map[string]string{
	"ФИО представителя": "representative_name",
	"Должность":         "position",
	"E-Mail":            "email",
}

var lotLabels = map[string]string{
	"№ п/п":        "seq_num",
	"Номер лота":   tender.KeyLotNumber,
	"Заказчик":     "customer",
	"Наименование": "item_name",
	"Дополнительная характеристика": "additional_specs",
	"Цена за ед.":    "unit_price",
	"Кол-во":         "quantity",
	"Ед. изм.":       "unit_of_measure",
	"Плановая сумма": "planned_amount",
	"Сумма 1 год":    "amount_year_1",
	"Сумма 2 год":    "amount_year_2",
	"Сумма 3 год":    "amount_year_3",
	"Статус лота":    "lot_status",
	"Пред. план":     tender.KeyPrevPlan,
}
