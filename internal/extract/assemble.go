package extract

import "github.com/JakeFAU/tender-analyzer/internal/tender"

// Assemble merges the tab fragments into one record. Keys are laid out as
// advert view, applications_count, general info, organizer, lots_info and
// techspec_files; later blocks win on a key clash. organizer_bin is derived
// last.
func Assemble(general General, lots []tender.Lot, files []tender.TechSpecFile) *tender.Record {
	record := tender.NewRecord()
	record.Merge(general.AdvertView)
	record.Set(tender.KeyApplicationsCount, general.ApplicationsCount)
	record.Merge(general.GeneralInfo)
	record.Merge(general.Organizer)
	if lots == nil {
		lots = []tender.Lot{}
	}
	record.Set(tender.KeyLotsInfo, lots)
	if files == nil {
		files = []tender.TechSpecFile{}
	}
	record.Set(tender.KeyTechSpecFiles, files)
	record.DeriveOrganizerBIN()
	return record
}
