package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"dyntables/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Event Service: event rows with attendees, reminders, categories
// ─────────────────────────────────────────────────────────────

// Column names of the default event schema.
const (
	ColumnStart       = "Start"
	ColumnEnd         = "End"
	ColumnLocation    = "Location"
	ColumnCategory    = "Category"
	ColumnAttendees   = "Attendees"
	ColumnReminders   = "Reminders"
	ColumnDescription = "Description"
)

// DefaultCategories are the built-in event category keys.
var DefaultCategories = []string{"meeting", "personal", "work", "deadline", "travel", "other"}

// categoryAliases maps folded localized labels to category keys.
var categoryAliases = map[string]string{
	"reunion":   "meeting",
	"personnel": "personal",
	"travail":   "work",
	"echeance":  "deadline",
	"voyage":    "travel",
	"autre":     "other",
}

// foldCategory lowercases s and strips its diacritics.
func foldCategory(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = strings.TrimSpace(s)
	}
	return cases.Fold().String(out)
}

// NormalizeCategory maps a category label to its key. Labels that are
// neither a default key nor a known alias are custom categories and are
// returned unchanged.
func NormalizeCategory(label string) string {
	folded := foldCategory(label)
	for _, k := range DefaultCategories {
		if folded == k {
			return k
		}
	}
	if k, ok := categoryAliases[folded]; ok {
		return k
	}
	return label
}

// EventInput creates one event. Permissions default to
// domain.DefaultGuestPermissions when attendees are given without them.
type EventInput struct {
	DatabaseID   string                   `json:"databaseId"`
	Title        string                   `json:"title"`
	Start        string                   `json:"start,omitempty"`
	End          string                   `json:"end,omitempty"`
	Location     string                   `json:"location,omitempty"`
	Category     string                   `json:"category,omitempty"`
	Description  string                   `json:"description,omitempty"`
	Attendees    []domain.Attendee        `json:"attendees,omitempty"`
	Permissions  *domain.GuestPermissions `json:"guestPermissions,omitempty"`
	Reminders    []domain.Reminder        `json:"reminders,omitempty"`
	Fields       map[string]any           `json:"fields,omitempty"`
	WithDocument bool                     `json:"withDocument"`
}

// EventPatch updates an event. Nil fields are left untouched; attendees
// and permissions are merged into the stored value independently.
type EventPatch struct {
	Title       *string                  `json:"title,omitempty"`
	Start       *string                  `json:"start,omitempty"`
	End         *string                  `json:"end,omitempty"`
	Location    *string                  `json:"location,omitempty"`
	Category    *string                  `json:"category,omitempty"`
	Description *string                  `json:"description,omitempty"`
	Attendees   *[]domain.Attendee       `json:"attendees,omitempty"`
	Permissions *domain.GuestPermissions `json:"guestPermissions,omitempty"`
	Reminders   *[]domain.Reminder       `json:"reminders,omitempty"`
	Fields      map[string]any           `json:"fields,omitempty"`
}

// EventService creates and updates rows of event databases.
type EventService struct {
	schemas domain.SchemaStore
	rows    *RowService
	log     *zap.SugaredLogger
}

func NewEventService(schemas domain.SchemaStore, rows *RowService, log *zap.SugaredLogger) *EventService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &EventService{schemas: schemas, rows: rows, log: log}
}

// CreateEvent adds an event row, numbered when the database has an
// Event Number column.
func (s *EventService) CreateEvent(ctx context.Context, in EventInput) (*BuildResult, error) {
	db, err := s.eventDatabase(ctx, "create event", in.DatabaseID)
	if err != nil {
		return nil, err
	}
	cells := namedCells(s.log, db, in.Fields)
	if col, ok := TitleColumn(db, ""); ok && in.Title != "" {
		cells[col.ID] = in.Title
	}
	setNamed(db, cells, ColumnStart, in.Start)
	setNamed(db, cells, ColumnEnd, in.End)
	setNamed(db, cells, ColumnLocation, in.Location)
	setNamed(db, cells, ColumnDescription, in.Description)
	if in.Category != "" {
		setNamed(db, cells, ColumnCategory, NormalizeCategory(in.Category))
	}
	if in.Attendees != nil || in.Permissions != nil {
		v := domain.AttendeesValue{Attendees: in.Attendees, Permissions: domain.DefaultGuestPermissions()}
		if v.Attendees == nil {
			v.Attendees = []domain.Attendee{}
		}
		if in.Permissions != nil {
			v.Permissions = *in.Permissions
		}
		setNamed(db, cells, ColumnAttendees, v)
	}
	if in.Reminders != nil {
		setNamed(db, cells, ColumnReminders, in.Reminders)
	}

	row, err := s.rows.AddRow(ctx, db.ID, cells, nil)
	if err != nil {
		return nil, err
	}
	return s.rows.withDocument(ctx, db, row, in.Title, in.WithDocument), nil
}

// UpdateEvent writes the supplied fields. Updating attendees keeps the
// stored permissions and the other way round; JSON members this package
// does not model are carried over from the stored cell.
func (s *EventService) UpdateEvent(ctx context.Context, databaseID, rowID string, p EventPatch) (*domain.LogicalRow, error) {
	db, err := s.eventDatabase(ctx, "update event", databaseID)
	if err != nil {
		return nil, err
	}
	cells := namedCells(s.log, db, p.Fields)
	if p.Title != nil {
		if col, ok := TitleColumn(db, ""); ok {
			cells[col.ID] = *p.Title
		}
	}
	setNamedPtr(db, cells, ColumnStart, p.Start)
	setNamedPtr(db, cells, ColumnEnd, p.End)
	setNamedPtr(db, cells, ColumnLocation, p.Location)
	setNamedPtr(db, cells, ColumnDescription, p.Description)
	if p.Category != nil {
		c := NormalizeCategory(*p.Category)
		setNamedPtr(db, cells, ColumnCategory, &c)
	}

	attCol, hasAtt := columnNamed(db, ColumnAttendees)
	remCol, hasRem := columnNamed(db, ColumnReminders)
	mergeAtt := hasAtt && (p.Attendees != nil || p.Permissions != nil)
	mergeRem := hasRem && p.Reminders != nil
	if mergeAtt || mergeRem {
		current, err := s.rows.GetRow(ctx, db.ID, rowID)
		if err != nil {
			return nil, err
		}
		if mergeAtt {
			v, err := MergeAttendees(current.Cells[attCol.ID], p.Attendees, p.Permissions)
			if err != nil {
				return nil, domain.Validation("update event", "attendees: %v", err).WithColumn(attCol.ID)
			}
			cells[attCol.ID] = v
		}
		if mergeRem {
			v, err := MergeReminders(current.Cells[remCol.ID], *p.Reminders)
			if err != nil {
				return nil, domain.Validation("update event", "reminders: %v", err).WithColumn(remCol.ID)
			}
			cells[remCol.ID] = v
		}
	}
	if col, _, ok := numberColumn(db); ok {
		delete(cells, col.ID)
	}
	return s.rows.UpdateRow(ctx, db.ID, rowID, cells)
}

// ListEvents returns the events of every event database of owner, up to limit.
func (s *EventService) ListEvents(ctx context.Context, ownerID string, limit int) ([]ListedRow, error) {
	return listByType(ctx, s.schemas, s.rows, ownerID, domain.DatabaseTypeEvent, limit)
}

func (s *EventService) eventDatabase(ctx context.Context, op, id string) (*domain.LogicalDatabase, error) {
	db, err := resolveDatabase(ctx, s.schemas, op, id)
	if err != nil {
		return nil, err
	}
	if db.Type != domain.DatabaseTypeEvent {
		return nil, domain.Validation(op, "database %q is not an event database", db.Name).WithDatabase(db.ID)
	}
	return db, nil
}

// ParseAttendees reads a decoded Attendees cell. A bare list is taken as
// the attendees with default permissions; anything unreadable is empty.
func ParseAttendees(v any) domain.AttendeesValue {
	out := domain.AttendeesValue{Attendees: []domain.Attendee{}, Permissions: domain.DefaultGuestPermissions()}
	b, ok := rawJSON(v)
	if !ok {
		return out
	}
	var list []domain.Attendee
	if err := json.Unmarshal(b, &list); err == nil {
		if list != nil {
			out.Attendees = list
		}
		return out
	}
	var obj struct {
		Attendees   []domain.Attendee        `json:"attendees"`
		Permissions *domain.GuestPermissions `json:"permissions"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return out
	}
	if obj.Attendees != nil {
		out.Attendees = obj.Attendees
	}
	if obj.Permissions != nil {
		out.Permissions = *obj.Permissions
	}
	return out
}

// ParseReminders reads a decoded Reminders cell. Unreadable values are
// empty.
func ParseReminders(v any) []domain.Reminder {
	out := []domain.Reminder{}
	b, ok := rawJSON(v)
	if !ok {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return []domain.Reminder{}
	}
	return out
}

type rawObject = map[string]json.RawMessage

// MergeAttendees applies a partial update to a stored Attendees cell and
// returns the new cell as JSON text. Only the supplied half is rewritten.
// Supplied attendees replace the list; an attendee whose email matches a
// stored one keeps the stored members it does not set. Supplied permissions
// overwrite the known flags and leave other stored keys alone.
func MergeAttendees(stored any, attendees *[]domain.Attendee, perms *domain.GuestPermissions) (string, error) {
	obj := rawObject{}
	if b, ok := rawJSON(stored); ok {
		if json.Unmarshal(b, &obj) != nil {
			obj = rawObject{}
			var list []json.RawMessage
			if json.Unmarshal(b, &list) == nil {
				obj["attendees"] = b
			}
		}
	}
	if obj == nil {
		obj = rawObject{}
	}
	if _, ok := obj["attendees"]; !ok {
		obj["attendees"] = json.RawMessage("[]")
	}
	if _, ok := obj["permissions"]; !ok {
		def, err := json.Marshal(domain.DefaultGuestPermissions())
		if err != nil {
			return "", err
		}
		obj["permissions"] = def
	}

	if attendees != nil {
		var current []rawObject
		_ = json.Unmarshal(obj["attendees"], &current)
		merged, err := mergeItems(current, *attendees, attendeeKey)
		if err != nil {
			return "", err
		}
		if obj["attendees"], err = json.Marshal(merged); err != nil {
			return "", err
		}
	}
	if perms != nil {
		current := rawObject{}
		if json.Unmarshal(obj["permissions"], &current) != nil || current == nil {
			current = rawObject{}
		}
		set, err := toRawObject(*perms)
		if err != nil {
			return "", err
		}
		for k, v := range set {
			current[k] = v
		}
		if obj["permissions"], err = json.Marshal(current); err != nil {
			return "", err
		}
	}
	b, err := json.Marshal(obj)
	return string(b), err
}

// MergeReminders replaces a stored Reminders array with supplied. A
// reminder with the same method and lead time as a stored one keeps the
// stored members it does not set.
func MergeReminders(stored any, supplied []domain.Reminder) (string, error) {
	var current []rawObject
	if b, ok := rawJSON(stored); ok {
		_ = json.Unmarshal(b, &current)
	}
	merged, err := mergeItems(current, supplied, reminderKey)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(merged)
	return string(b), err
}

// mergeItems encodes supplied and fills each item with the members of the
// stored item sharing its key.
func mergeItems[T any](stored []rawObject, supplied []T, key func(rawObject) string) ([]rawObject, error) {
	byKey := make(map[string]rawObject, len(stored))
	for _, item := range stored {
		if k := key(item); k != "" {
			if _, dup := byKey[k]; !dup {
				byKey[k] = item
			}
		}
	}
	out := make([]rawObject, 0, len(supplied))
	for _, item := range supplied {
		m, err := toRawObject(item)
		if err != nil {
			return nil, err
		}
		for k, v := range byKey[key(m)] {
			if _, set := m[k]; !set {
				m[k] = v
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func toRawObject(v any) (rawObject, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m rawObject
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func attendeeKey(m rawObject) string {
	var email string
	if json.Unmarshal(m["email"], &email) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email))
}

func reminderKey(m rawObject) string {
	var r domain.Reminder
	if json.Unmarshal(m["method"], &r.Method) != nil || json.Unmarshal(m["minutes"], &r.Minutes) != nil {
		return ""
	}
	return fmt.Sprintf("%s/%d", r.Method, r.Minutes)
}

// rawJSON turns a decoded cell back into JSON text.
func rawJSON(v any) ([]byte, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		if !json.Valid([]byte(x)) {
			return nil, false
		}
		return []byte(x), true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}
