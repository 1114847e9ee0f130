package Collaborator

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Auth"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
	"github.com/abdul977/whimsical-idea-keeper/service/Note"
)

type fixture struct {
	db      *gorm.DB
	service CollaboratorService
	notes   Note.NoteService
	owner   *database.User
	bob     *database.User
	carol   *database.User
	noteID  uint
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	ctx := context.Background()
	users, err := Auth.NewUserService(db, nil)
	require.NoError(t, err)
	notes, err := Note.NewNoteService(db, nil, nil)
	require.NoError(t, err)
	service, err := NewCollaboratorService(db, notes, users, nil)
	require.NoError(t, err)

	f := &fixture{db: db, service: service, notes: notes}
	for _, u := range []struct {
		name string
		dst  **database.User
	}{{"alice", &f.owner}, {"bob", &f.bob}, {"carol", &f.carol}} {
		user, err := users.CreateUser(ctx, database.RegisterRequest{Username: u.name, Email: u.name + "@example.com", Password: "secret1"})
		require.NoError(t, err)
		*u.dst = user
	}

	note, err := notes.Create(ctx, Note.Actor{UserID: f.owner.ID, Username: "alice"},
		database.SaveNoteRequest{Title: "协作", Entries: []database.NoteEntryInput{{Content: "hello"}}})
	require.NoError(t, err)
	f.noteID = note.ID
	return f
}

func TestInvite(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.service.Invite(ctx, f.owner.ID, f.noteID, database.InviteCollaboratorRequest{Email: "BOB@example.com", Permission: database.PermissionEdit})
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, c.UserID)
	assert.Equal(t, "bob", c.DisplayName)
	assert.Equal(t, "bob@example.com", c.Email)

	c, err = f.service.Invite(ctx, f.owner.ID, f.noteID, database.InviteCollaboratorRequest{UserID: f.carol.ID, DisplayName: "Carol C", Permission: database.PermissionView})
	require.NoError(t, err)
	assert.Equal(t, "Carol C", c.DisplayName)

	role, err := f.notes.Access(ctx, f.bob.ID, f.noteID)
	require.NoError(t, err)
	assert.Equal(t, Note.RoleEditor, role)
}

func TestDuplicateInviteLeavesListUnchanged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.service.Invite(ctx, f.owner.ID, f.noteID, database.InviteCollaboratorRequest{UserID: f.bob.ID, Permission: database.PermissionView})
	require.NoError(t, err)
	before, err := f.service.List(ctx, f.owner.ID, f.noteID)
	require.NoError(t, err)

	_, err = f.service.Invite(ctx, f.owner.ID, f.noteID, database.InviteCollaboratorRequest{Email: "bob@example.com", Permission: database.PermissionEdit})
	assert.True(t, Errs.Is(err, Errs.KindConflict))

	after, err := f.service.List(ctx, f.owner.ID, f.noteID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, database.PermissionView, after[0].Permission)
}

func TestUniqueIndexRejectsDuplicateRow(t *testing.T) {
	f := setup(t)

	row := database.Collaborator{NoteID: f.noteID, UserID: f.bob.ID, Permission: database.PermissionView}
	require.NoError(t, f.db.Create(&row).Error)
	dup := database.Collaborator{NoteID: f.noteID, UserID: f.bob.ID, Permission: database.PermissionEdit}
	assert.Error(t, f.db.Create(&dup).Error)
}

func TestInviteValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		actorID  uint
		req      database.InviteCollaboratorRequest
		wantKind Errs.Kind
	}{
		{"非法权限", f.owner.ID, database.InviteCollaboratorRequest{UserID: f.bob.ID, Permission: "admin"}, Errs.KindValidation},
		{"缺少对象", f.owner.ID, database.InviteCollaboratorRequest{Permission: database.PermissionView}, Errs.KindValidation},
		{"邀请自己", f.owner.ID, database.InviteCollaboratorRequest{UserID: f.owner.ID, Permission: database.PermissionView}, Errs.KindValidation},
		{"用户不存在", f.owner.ID, database.InviteCollaboratorRequest{Email: "nobody@example.com", Permission: database.PermissionView}, Errs.KindNotFound},
		{"非所有者", f.bob.ID, database.InviteCollaboratorRequest{UserID: f.carol.ID, Permission: database.PermissionView}, Errs.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Invite(ctx, tt.actorID, f.noteID, tt.req)
			assert.True(t, Errs.Is(err, tt.wantKind), "got %v", err)
		})
	}
}

func TestUpdatePermissionAndRemove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.service.Invite(ctx, f.owner.ID, f.noteID, database.InviteCollaboratorRequest{UserID: f.bob.ID, Permission: database.PermissionView})
	require.NoError(t, err)

	c, err := f.service.UpdatePermission(ctx, f.owner.ID, f.noteID, f.bob.ID, database.PermissionEdit)
	require.NoError(t, err)
	assert.Equal(t, database.PermissionEdit, c.Permission)

	_, err = f.service.UpdatePermission(ctx, f.owner.ID, f.noteID, f.carol.ID, database.PermissionEdit)
	assert.True(t, Errs.Is(err, Errs.KindNotFound))

	assert.True(t, Errs.Is(f.service.Remove(ctx, f.bob.ID, f.noteID, f.bob.ID), Errs.KindForbidden))
	require.NoError(t, f.service.Remove(ctx, f.owner.ID, f.noteID, f.bob.ID))
	assert.True(t, Errs.Is(f.service.Remove(ctx, f.owner.ID, f.noteID, f.bob.ID), Errs.KindNotFound))

	role, err := f.notes.Access(ctx, f.bob.ID, f.noteID)
	require.NoError(t, err)
	assert.Equal(t, Note.RoleNone, role)
}

func TestListAndTouch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.service.Invite(ctx, f.owner.ID, f.noteID, database.InviteCollaboratorRequest{UserID: f.bob.ID, Permission: database.PermissionView})
	require.NoError(t, err)

	_, err = f.service.List(ctx, f.carol.ID, f.noteID)
	assert.True(t, Errs.Is(err, Errs.KindForbidden))

	require.NoError(t, f.service.Touch(ctx, f.noteID, f.bob.ID))
	require.NoError(t, f.service.Touch(ctx, f.noteID, f.carol.ID))

	list, err := f.service.List(ctx, f.bob.ID, f.noteID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].LastActive)
}
