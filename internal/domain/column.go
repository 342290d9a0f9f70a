package domain

// ColumnType defines the logical data type of a column.
type ColumnType string

const (
	ColTypeText        ColumnType = "text"
	ColTypeNumber      ColumnType = "number"
	ColTypeDate        ColumnType = "date"
	ColTypeDatetime    ColumnType = "datetime"
	ColTypeCheckbox    ColumnType = "checkbox"
	ColTypeSelect      ColumnType = "select"
	ColTypeMultiSelect ColumnType = "multi_select"
	ColTypeURL         ColumnType = "url"
	ColTypeEmail       ColumnType = "email"
	ColTypePhone       ColumnType = "phone"
	ColTypePerson      ColumnType = "person"
	ColTypeFormula     ColumnType = "formula"
	ColTypeRelation    ColumnType = "relation"
	ColTypeRollup      ColumnType = "rollup"
	ColTypeLinkedItems ColumnType = "linked_items"
	ColTypeAttendees   ColumnType = "attendees"
	ColTypeReminders   ColumnType = "reminders"
	ColTypeProgress    ColumnType = "progress"
	ColTypeRating      ColumnType = "rating"
	ColTypeTimer       ColumnType = "timer"
)

// ColumnDef is one entry of a logical database schema.
type ColumnDef struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     ColumnType     `json:"type"`
	Visible  bool           `json:"visible"`
	Readonly bool           `json:"readonly,omitempty"`
	Order    int            `json:"order"`
	Options  *ColumnOptions `json:"options,omitempty"`
}

// ColumnOptions holds type-specific settings, currently select choices.
type ColumnOptions struct {
	Choices []Choice `json:"choices,omitempty"`
}

// Choice is a select / multi-select option.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// ResolveChoice maps a label or id to the choice id. Labels win over ids.
func (c ColumnDef) ResolveChoice(v string) (string, bool) {
	if c.Options == nil {
		return "", false
	}
	for _, ch := range c.Options.Choices {
		if ch.Label == v {
			return ch.ID, true
		}
	}
	for _, ch := range c.Options.Choices {
		if ch.ID == v {
			return ch.ID, true
		}
	}
	return "", false
}
