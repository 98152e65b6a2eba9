package store

import "cookietrail/services/recorder/internal/classifier"

// ReferenceRow is one knowledge-base entry as stored in a reference table.
// Position preserves the document order of the export it came from.
type ReferenceRow struct {
	Position        int
	ID              string
	Cookie          string
	Domain          string
	Category        string
	Description     string
	Platform        string
	RetentionPeriod string
	DataController  string
	PrivacyLink     string
}

func (r ReferenceRow) Entry() classifier.Entry {
	return classifier.Entry{
		ID:              r.ID,
		Cookie:          r.Cookie,
		Domain:          r.Domain,
		Category:        r.Category,
		Description:     r.Description,
		Platform:        r.Platform,
		RetentionPeriod: r.RetentionPeriod,
		DataController:  r.DataController,
		PrivacyLink:     r.PrivacyLink,
	}
}

func RowFromEntry(position int, entry classifier.Entry) ReferenceRow {
	return ReferenceRow{
		Position:        position,
		ID:              entry.ID,
		Cookie:          entry.Cookie,
		Domain:          entry.Domain,
		Category:        entry.Category,
		Description:     entry.Description,
		Platform:        entry.Platform,
		RetentionPeriod: entry.RetentionPeriod,
		DataController:  entry.DataController,
		PrivacyLink:     entry.PrivacyLink,
	}
}

type ImportResult struct {
	Table    string `json:"table"`
	Replaced int    `json:"replaced"`
	Imported int    `json:"imported"`
}
