package codec

import "dyntables/internal/domain"

// StorageType is the physical representation of a logical column type.
type StorageType string

const (
	StorageText     StorageType = "text"
	StorageNumeric  StorageType = "numeric"
	StorageBoolean  StorageType = "boolean"
	StorageDate     StorageType = "date"
	StorageDatetime StorageType = "datetime"
	StorageJSON     StorageType = "json"
)

var storageByType = map[domain.ColumnType]StorageType{
	domain.ColTypeText:        StorageText,
	domain.ColTypeURL:         StorageText,
	domain.ColTypeEmail:       StorageText,
	domain.ColTypePhone:       StorageText,
	domain.ColTypePerson:      StorageText,
	domain.ColTypeSelect:      StorageText,
	domain.ColTypeFormula:     StorageText,
	domain.ColTypeRollup:      StorageText,
	domain.ColTypeNumber:      StorageNumeric,
	domain.ColTypeProgress:    StorageNumeric,
	domain.ColTypeRating:      StorageNumeric,
	domain.ColTypeTimer:       StorageNumeric,
	domain.ColTypeCheckbox:    StorageBoolean,
	domain.ColTypeDate:        StorageDate,
	domain.ColTypeDatetime:    StorageDatetime,
	domain.ColTypeMultiSelect: StorageJSON,
	domain.ColTypeRelation:    StorageJSON,
	domain.ColTypeLinkedItems: StorageJSON,
	domain.ColTypeAttendees:   StorageJSON,
	domain.ColTypeReminders:   StorageJSON,
}

// KnownType reports whether t has a storage mapping.
func KnownType(t domain.ColumnType) bool {
	_, ok := storageByType[t]
	return ok
}

// StorageFor returns the storage type of a logical column type.
// Unknown types are stored as text.
func StorageFor(t domain.ColumnType) StorageType {
	if st, ok := storageByType[t]; ok {
		return st
	}
	return StorageText
}
