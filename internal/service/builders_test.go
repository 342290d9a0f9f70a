package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/domain"
	"dyntables/internal/service"
)

func createTyped(t *testing.T, e *env, typ domain.DatabaseType) *domain.LogicalDatabase {
	t.Helper()
	db, err := e.dbs.CreateDatabase(e.ctx, domain.CreateDatabaseInput{Name: string(typ) + "s", Type: typ, OwnerID: "owner-1"}, true)
	require.NoError(t, err)
	return db
}

func column(t *testing.T, db *domain.LogicalDatabase, name string) domain.ColumnDef {
	t.Helper()
	c, ok := db.ColumnByName(name)
	require.True(t, ok, "column %q", name)
	return c
}

func TestTasks_NumberingAndStatus(t *testing.T) {
	e := newEnv(t)
	db := createTyped(t, e, domain.DatabaseTypeTask)
	number := column(t, db, service.ColumnTaskNumber)
	status := column(t, db, service.ColumnStatus)

	res, err := e.tasks.CreateTask(e.ctx, service.TaskInput{DatabaseID: db.ID, Title: "Write docs", Priority: "High", WithDocument: true})
	require.NoError(t, err)
	assert.Equal(t, 1, e.seq.Calls(domain.SequenceTaskNumber))
	assert.Equal(t, float64(1), res.Row.Cells[number.ID])
	assert.Equal(t, service.DefaultTaskStatus, res.Row.Cells[status.ID])
	assert.Equal(t, "high", res.Row.Cells[column(t, db, service.ColumnPriority).ID], "labels resolve to choice ids")
	require.NotNil(t, res.Document)
	assert.Equal(t, "Write docs", res.Document.Title)

	updated, err := e.tasks.UpdateTask(e.ctx, db.ID, res.Row.ID, service.TaskPatch{Title: ptr("Write more docs"), Status: ptr("done")})
	require.NoError(t, err)
	assert.Equal(t, 1, e.seq.Calls(domain.SequenceTaskNumber), "updates never draw a number")
	assert.Equal(t, float64(1), updated.Cells[number.ID])
	assert.Equal(t, "done", updated.Cells[status.ID])

	second, err := e.tasks.CreateTask(e.ctx, service.TaskInput{DatabaseID: db.ID, Title: "Second"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), second.Row.Cells[number.ID])
	assert.Nil(t, second.Document)

	explicit, err := e.tasks.CreateTask(e.ctx, service.TaskInput{
		DatabaseID: db.ID, Title: "Imported", Fields: map[string]any{service.ColumnTaskNumber: 77},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(77), explicit.Row.Cells[number.ID])
	assert.Equal(t, 2, e.seq.Calls(domain.SequenceTaskNumber))

	dup, err := e.rows.DuplicateRow(e.ctx, db.ID, res.Row.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(3), dup.Cells[number.ID], "a duplicate gets its own number")

	listed, err := e.tasks.ListTasks(e.ctx, "owner-1", 0)
	require.NoError(t, err)
	assert.Len(t, listed, 4)

	_, err = e.events.CreateEvent(e.ctx, service.EventInput{DatabaseID: db.ID, Title: "wrong type"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTasks_DocumentFailureKeepsRow(t *testing.T) {
	e := newEnv(t)
	db := createTyped(t, e, domain.DatabaseTypeTask)
	e.docs.FailTitle("Ship it")

	res, err := e.tasks.CreateTask(e.ctx, service.TaskInput{DatabaseID: db.ID, Title: "Ship it", WithDocument: true})
	require.NoError(t, err)
	require.NotNil(t, res.Row)
	assert.Nil(t, res.Document)
	assert.Equal(t, "the operation failed, please try again", res.DocumentError)

	got, err := e.rows.GetRow(e.ctx, db.ID, res.Row.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ship it", got.Cells[column(t, db, "Title").ID])
}

func TestEvents_AttendeesPartialUpdate(t *testing.T) {
	e := newEnv(t)
	db := createTyped(t, e, domain.DatabaseTypeEvent)
	attendees := column(t, db, service.ColumnAttendees)

	a := domain.Attendee{Email: "a@example.com"}
	b := domain.Attendee{Email: "b@example.com"}
	c := domain.Attendee{Email: "c@example.com", Name: "C"}
	p := domain.GuestPermissions{CanModify: true, CanInvite: true}
	q := domain.GuestPermissions{CanSeeGuests: true}

	create := func() *domain.LogicalRow {
		res, err := e.events.CreateEvent(e.ctx, service.EventInput{
			DatabaseID: db.ID, Title: "Standup", Attendees: []domain.Attendee{a, b}, Permissions: &p,
		})
		require.NoError(t, err)
		return res.Row
	}

	first := create()
	updated, err := e.events.UpdateEvent(e.ctx, db.ID, first.ID, service.EventPatch{Attendees: &[]domain.Attendee{c}})
	require.NoError(t, err)
	assert.Equal(t, domain.AttendeesValue{Attendees: []domain.Attendee{c}, Permissions: p}, service.ParseAttendees(updated.Cells[attendees.ID]))

	second := create()
	updated, err = e.events.UpdateEvent(e.ctx, db.ID, second.ID, service.EventPatch{Permissions: &q})
	require.NoError(t, err)
	assert.Equal(t, domain.AttendeesValue{Attendees: []domain.Attendee{a, b}, Permissions: q}, service.ParseAttendees(updated.Cells[attendees.ID]))

	assert.Equal(t, 2, e.seq.Calls(domain.SequenceEventNumber))
}

func TestEvents_PartialUpdateKeepsUnknownMembers(t *testing.T) {
	e := newEnv(t)
	db := createTyped(t, e, domain.DatabaseTypeEvent)
	attendees := column(t, db, service.ColumnAttendees)
	reminders := column(t, db, service.ColumnReminders)

	row, err := e.rows.AddRow(e.ctx, db.ID, map[string]any{
		attendees.ID: `{"attendees":[{"email":"a@x.io","id":"u1","role":"organizer"}],` +
			`"permissions":{"canEditTitle":true,"canModify":true,"canInvite":false,"canSeeGuests":true},"source":"ical"}`,
		reminders.ID: `[{"method":"popup","minutes":10,"sound":"chime"}]`,
	}, nil)
	require.NoError(t, err)

	updated, err := e.events.UpdateEvent(e.ctx, db.ID, row.ID, service.EventPatch{
		Permissions: &domain.GuestPermissions{CanInvite: true},
	})
	require.NoError(t, err)
	cell := updated.Cells[attendees.ID].(map[string]any)
	assert.Equal(t, []any{map[string]any{"email": "a@x.io", "id": "u1", "role": "organizer"}}, cell["attendees"])
	assert.Equal(t, map[string]any{"canEditTitle": true, "canModify": false, "canInvite": true, "canSeeGuests": false}, cell["permissions"])
	assert.Equal(t, "ical", cell["source"])

	updated, err = e.events.UpdateEvent(e.ctx, db.ID, row.ID, service.EventPatch{
		Attendees: &[]domain.Attendee{{Email: "A@x.io", Status: "accepted"}, {Email: "b@x.io"}},
		Reminders: &[]domain.Reminder{{Method: "popup", Minutes: 10}, {Method: "email", Minutes: 60}},
	})
	require.NoError(t, err)
	cell = updated.Cells[attendees.ID].(map[string]any)
	assert.Equal(t, []any{
		map[string]any{"email": "A@x.io", "status": "accepted", "id": "u1", "role": "organizer"},
		map[string]any{"email": "b@x.io"},
	}, cell["attendees"])
	assert.Equal(t, true, cell["permissions"].(map[string]any)["canEditTitle"], "permissions untouched")
	assert.Equal(t, true, cell["permissions"].(map[string]any)["canInvite"])
	assert.Equal(t, []any{
		map[string]any{"method": "popup", "minutes": float64(10), "sound": "chime"},
		map[string]any{"method": "email", "minutes": float64(60)},
	}, updated.Cells[reminders.ID])
}

func TestMergeAttendees_BareListAndEmpty(t *testing.T) {
	perms := domain.GuestPermissions{CanModify: true}
	got, err := service.MergeAttendees([]any{map[string]any{"email": "x@x.io", "tz": "Europe/Paris"}}, nil, &perms)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attendees":[{"email":"x@x.io","tz":"Europe/Paris"}],"permissions":{"canModify":true,"canInvite":false,"canSeeGuests":false}}`, got)

	got, err = service.MergeAttendees(nil, &[]domain.Attendee{{Email: "y@x.io"}}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attendees":[{"email":"y@x.io"}],"permissions":{"canModify":false,"canInvite":false,"canSeeGuests":true}}`, got)

	got, err = service.MergeAttendees("null", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attendees":[],"permissions":{"canModify":false,"canInvite":false,"canSeeGuests":true}}`, got)
}

func TestEvents_RemindersAndCategory(t *testing.T) {
	e := newEnv(t)
	db := createTyped(t, e, domain.DatabaseTypeEvent)
	reminders := []domain.Reminder{{Method: "popup", Minutes: 10}, {Method: "email", Minutes: 60}}

	res, err := e.events.CreateEvent(e.ctx, service.EventInput{
		DatabaseID: db.ID, Title: "Offsite", Category: "Réunion", Reminders: reminders, Start: "2024-05-01T09:00:00Z",
	})
	require.NoError(t, err)
	row := res.Row
	assert.Equal(t, reminders, service.ParseReminders(row.Cells[column(t, db, service.ColumnReminders).ID]))
	assert.IsType(t, []any{}, row.Cells[column(t, db, service.ColumnReminders).ID], "reminders are stored as a bare array")
	assert.Equal(t, "meeting", row.Cells[column(t, db, service.ColumnCategory).ID])
	assert.Equal(t, "2024-05-01T09:00:00Z", row.Cells[column(t, db, service.ColumnStart).ID])

	updated, err := e.events.UpdateEvent(e.ctx, db.ID, row.ID, service.EventPatch{Category: ptr("Yoga")})
	require.NoError(t, err)
	assert.Equal(t, "Yoga", updated.Cells[column(t, db, service.ColumnCategory).ID], "custom categories pass through")
}

func TestNormalizeCategory(t *testing.T) {
	tests := map[string]string{
		"meeting":  "meeting",
		"Work":     "work",
		"Réunion":  "meeting",
		"REUNION":  "meeting",
		"TRAVAIL":  "work",
		"échéance": "deadline",
		" voyage ": "travel",
		"Autre":    "other",
		"Yoga":     "Yoga",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, service.NormalizeCategory(in), "input %q", in)
	}
}

func TestParseAttendees_Malformed(t *testing.T) {
	def := domain.AttendeesValue{Attendees: []domain.Attendee{}, Permissions: domain.DefaultGuestPermissions()}
	assert.Equal(t, def, service.ParseAttendees(nil))
	assert.Equal(t, def, service.ParseAttendees("{not json"))
	assert.Equal(t, def, service.ParseAttendees(42.0))

	bare := service.ParseAttendees([]any{map[string]any{"email": "x@example.com"}})
	assert.Equal(t, []domain.Attendee{{Email: "x@example.com"}}, bare.Attendees)
	assert.Equal(t, domain.DefaultGuestPermissions(), bare.Permissions)

	assert.Empty(t, service.ParseReminders("oops"))
}

func ptr[T any](v T) *T { return &v }
