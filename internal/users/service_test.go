package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/database/models"
	"github.com/hugh/go-accounts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []models.UserEmail
	err  error
}

func (d *fakeDispatcher) SendVerificationEmail(ctx context.Context, email models.UserEmail) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, email)
	return nil
}

func (d *fakeDispatcher) addresses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.sent))
	for _, e := range d.sent {
		out = append(out, e.Email)
	}
	return out
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, userID)
	return nil
}

type fixture struct {
	db          *gorm.DB
	svc         *Service
	dispatcher  *fakeDispatcher
	invalidator *fakeInvalidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	dispatcher := &fakeDispatcher{}
	invalidator := &fakeInvalidator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(database.NewFactory(db), dispatcher, invalidator, logger, Options{
		DispatchTimeout:     5 * time.Second,
		DispatchConcurrency: 2,
	})
	return &fixture{db: db, svc: svc, dispatcher: dispatcher, invalidator: invalidator}
}

func strPtr(s string) *string { return &s }

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestCreate_WithoutPassword(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	user, err := f.svc.Create(ctx, CreateInput{
		FirstName:           "Jane",
		LastName:            "Doe",
		PrimaryEmailAddress: "jane@example.com",
	})
	require.NoError(t, err)
	assert.Nil(t, user.Password)

	got, err := f.svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, got.Organizations, 1)
	assert.True(t, got.Organizations[0].Personal)
	assert.Equal(t, "jane@example.com", got.Organizations[0].Name)

	require.NotNil(t, got.PrimaryEmailID)
	var primary models.UserEmail
	require.NoError(t, f.db.First(&primary, "id = ?", *got.PrimaryEmailID).Error)
	assert.Equal(t, "jane@example.com", primary.Email)
	assert.Equal(t, user.ID, primary.UserID)
	assert.EqualValues(t, 1, f.count(t, &models.UserEmail{}))

	assert.Equal(t, []string{"jane@example.com"}, f.dispatcher.addresses())
}

func TestCreate_HashesPassword(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.Create(testutil.TestContext(t), CreateInput{
		FirstName:           "Jane",
		LastName:            "Doe",
		Password:            strPtr("correct horse"),
		ConfirmPassword:     strPtr("correct horse"),
		PrimaryEmailAddress: "jane@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, user.Password)
	assert.NotEqual(t, "correct horse", *user.Password)
	assert.True(t, auth.CheckPassword("correct horse", user.Password))
}

func TestCreate_PasswordMismatch(t *testing.T) {
	tests := []struct {
		name            string
		password        *string
		confirmPassword *string
	}{
		{"different", strPtr("one-password"), strPtr("two-password")},
		{"confirm missing", strPtr("one-password"), nil},
		{"password missing", nil, strPtr("two-password")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(testutil.TestContext(t), CreateInput{
				FirstName:           "Jane",
				LastName:            "Doe",
				Password:            tt.password,
				ConfirmPassword:     tt.confirmPassword,
				PrimaryEmailAddress: "jane@example.com",
			})
			assert.ErrorIs(t, err, ErrPasswordMismatch)

			assert.Zero(t, f.count(t, &models.User{}))
			assert.Zero(t, f.count(t, &models.Organization{}))
			assert.Zero(t, f.count(t, &models.UserEmail{}))
			assert.Empty(t, f.dispatcher.addresses())
		})
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	in := CreateInput{FirstName: "Jane", LastName: "Doe", PrimaryEmailAddress: "jane@example.com"}

	_, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrEmailInUse)
	assert.EqualValues(t, 1, f.count(t, &models.User{}))
	// The rejected attempt left no personal organization behind.
	assert.EqualValues(t, 1, f.count(t, &models.Organization{}))
}

func TestCreate_ReusesAddressOfDeletedUser(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	in := CreateInput{FirstName: "Jane", LastName: "Doe", PrimaryEmailAddress: "jane@example.com"}

	first, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, first.ID))

	second, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreate_ConcurrentDuplicateSignup(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	in := CreateInput{FirstName: "Jane", LastName: "Doe", PrimaryEmailAddress: "race@example.com"}

	const attempts = 2
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, in)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrEmailInUse):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.EqualValues(t, 1, f.count(t, &models.User{}))
}

func TestCreate_Organizations(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	acme := testutil.CreateTestOrg(t, f.db, "Acme")
	globex := testutil.CreateTestOrg(t, f.db, "Globex")

	user, err := f.svc.Create(ctx, CreateInput{
		FirstName:           "Jane",
		LastName:            "Doe",
		PrimaryEmailAddress: "jane@example.com",
		OrganizationIDs:     []uuid.UUID{acme.ID, globex.ID},
	})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, user.ID)
	require.NoError(t, err)

	names := make([]string, 0, len(got.Organizations))
	for _, o := range got.Organizations {
		names = append(names, o.Name)
	}
	assert.ElementsMatch(t, []string{"Acme", "Globex", "jane@example.com"}, names)

	t.Run("unknown organization", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateInput{
			FirstName:           "John",
			LastName:            "Doe",
			PrimaryEmailAddress: "john@example.com",
			OrganizationIDs:     []uuid.UUID{uuid.New()},
		})
		assert.ErrorIs(t, err, ErrUnknownOrganization)
		assert.EqualValues(t, 1, f.count(t, &models.User{}))
	})
}

func TestCreate_DispatchFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue down")

	user, err := f.svc.Create(testutil.TestContext(t), CreateInput{
		FirstName: "Jane", LastName: "Doe", PrimaryEmailAddress: "jane@example.com",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

func TestGetListDelete(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	a := testutil.CreateTestUser(t, f.db)
	b := testutil.CreateTestUser(t, f.db)

	users, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = f.svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, f.svc.Delete(ctx, a.ID))
	assert.Equal(t, []uuid.UUID{a.ID}, f.invalidator.ids)

	_, err = f.svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	var stored models.User
	require.NoError(t, f.db.First(&stored, "id = ?", a.ID).Error)
	assert.True(t, stored.Deleted)
	assert.True(t, stored.Disabled)

	users, err = f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, b.ID, users[0].ID)

	assert.ErrorIs(t, f.svc.Delete(ctx, a.ID), ErrUserNotFound)
}

func TestUpdateGeneral(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)

	updated, err := f.svc.UpdateGeneral(ctx, user.ID, GeneralInput{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.FirstName)
	assert.Equal(t, "Lovelace", updated.LastName)
	assert.Equal(t, user.PrimaryEmailAddress, updated.PrimaryEmailAddress)

	_, err = f.svc.UpdateGeneral(ctx, uuid.New(), GeneralInput{FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func liveAddresses(t *testing.T, db *gorm.DB, userID uuid.UUID) []string {
	t.Helper()
	var emails []models.UserEmail
	require.NoError(t, db.Where("user_id = ? AND deleted = ?", userID, false).Find(&emails).Error)
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		out = append(out, e.Email)
	}
	return out
}

func TestAddEmails(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	old := testutil.CreateTestUserEmail(t, f.db, user, "old@example.com")

	err := f.svc.AddEmails(ctx, user.ID, []database.UserEmailInput{
		{Email: "new@example.com"},
		{Email: "renamed@example.com", ID: &old.ID},
		{Email: user.PrimaryEmailAddress},
	})
	require.NoError(t, err)
	f.svc.Wait()

	assert.ElementsMatch(t, []string{user.PrimaryEmailAddress, "new@example.com", "renamed@example.com"},
		liveAddresses(t, f.db, user.ID))
	// The existing primary address was skipped, so only two were dispatched.
	assert.ElementsMatch(t, []string{"new@example.com", "renamed@example.com"}, f.dispatcher.addresses())
}

func TestAddEmails_RestoresDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	gone := testutil.CreateTestUserEmail(t, f.db, user, "back@example.com")
	require.NoError(t, f.svc.DeleteEmails(ctx, user.ID, []uuid.UUID{gone.ID}))

	require.NoError(t, f.svc.AddEmails(ctx, user.ID, []database.UserEmailInput{{Email: "back@example.com"}}))
	f.svc.Wait()

	var restored models.UserEmail
	require.NoError(t, f.db.First(&restored, "id = ?", gone.ID).Error)
	assert.False(t, restored.Deleted)
	assert.EqualValues(t, 2, f.count(t, &models.UserEmail{}))
}

func TestAddEmails_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	other := testutil.CreateTestUser(t, f.db)
	foreign := testutil.CreateTestUserEmail(t, f.db, other, "foreign@example.com")

	err := f.svc.AddEmails(ctx, user.ID, []database.UserEmailInput{
		{Email: "fine@example.com"},
		{Email: "stolen@example.com", ID: &foreign.ID},
	})
	assert.ErrorIs(t, err, ErrUnknownUserEmail)
	// Rolled back as a whole.
	assert.ElementsMatch(t, []string{user.PrimaryEmailAddress}, liveAddresses(t, f.db, user.ID))

	err = f.svc.AddEmails(ctx, uuid.New(), []database.UserEmailInput{{Email: "x@example.com"}})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddEmails_ReaddressingPrimaryMovesPrimaryAddress(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)

	err := f.svc.AddEmails(ctx, user.ID, []database.UserEmailInput{
		{Email: "moved@example.com", ID: user.PrimaryEmailID},
	})
	require.NoError(t, err)
	f.svc.Wait()

	got, err := f.svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "moved@example.com", got.PrimaryEmailAddress)
	assert.Equal(t, user.PrimaryEmailID, got.PrimaryEmailID)
}

func TestAddEmails_DispatchDetachedFromRequest(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateTestUser(t, f.db)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.svc.AddEmails(ctx, user.ID, []database.UserEmailInput{
		{Email: "a@example.com"}, {Email: "b@example.com"}, {Email: "c@example.com"},
	}))
	cancel()

	assert.Eventually(t, func() bool {
		return len(f.dispatcher.addresses()) == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDeleteEmails(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	a := testutil.CreateTestUserEmail(t, f.db, user, "a@example.com")
	b := testutil.CreateTestUserEmail(t, f.db, user, "b@example.com")

	t.Run("primary alone", func(t *testing.T) {
		err := f.svc.DeleteEmails(ctx, user.ID, []uuid.UUID{*user.PrimaryEmailID})
		assert.ErrorIs(t, err, ErrPrimaryEmailDeletion)
	})

	t.Run("primary in batch", func(t *testing.T) {
		err := f.svc.DeleteEmails(ctx, user.ID, []uuid.UUID{a.ID, *user.PrimaryEmailID, b.ID})
		assert.ErrorIs(t, err, ErrPrimaryEmailDeletion)
		assert.ElementsMatch(t, []string{user.PrimaryEmailAddress, "a@example.com", "b@example.com"},
			liveAddresses(t, f.db, user.ID))
	})

	t.Run("secondary", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteEmails(ctx, user.ID, []uuid.UUID{a.ID, b.ID}))
		assert.ElementsMatch(t, []string{user.PrimaryEmailAddress}, liveAddresses(t, f.db, user.ID))
	})

	t.Run("other user's email is untouched", func(t *testing.T) {
		other := testutil.CreateTestUser(t, f.db)
		theirs := testutil.CreateTestUserEmail(t, f.db, other, "theirs@example.com")
		require.NoError(t, f.svc.DeleteEmails(ctx, user.ID, []uuid.UUID{theirs.ID}))
		assert.Contains(t, liveAddresses(t, f.db, other.ID), "theirs@example.com")
	})
}

func TestSetPrimaryEmail(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	second := testutil.CreateTestUserEmail(t, f.db, user, "second@example.com")

	require.NoError(t, f.svc.SetPrimaryEmail(ctx, user.ID, second.ID))

	got, err := f.svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "second@example.com", got.PrimaryEmailAddress)
	require.NotNil(t, got.PrimaryEmailID)
	assert.Equal(t, second.ID, *got.PrimaryEmailID)

	t.Run("email of another user", func(t *testing.T) {
		other := testutil.CreateTestUser(t, f.db)
		err := f.svc.SetPrimaryEmail(ctx, user.ID, *other.PrimaryEmailID)
		assert.ErrorIs(t, err, ErrUserEmailNotFound)
	})

	t.Run("deleted email", func(t *testing.T) {
		gone := testutil.CreateTestUserEmail(t, f.db, user, "gone@example.com")
		require.NoError(t, f.svc.DeleteEmails(ctx, user.ID, []uuid.UUID{gone.ID}))
		assert.ErrorIs(t, f.svc.SetPrimaryEmail(ctx, user.ID, gone.ID), ErrUserEmailNotFound)
	})

	t.Run("address held by another user", func(t *testing.T) {
		other := testutil.CreateTestUser(t, f.db)
		dup := testutil.CreateTestUserEmail(t, f.db, user, other.PrimaryEmailAddress)
		assert.ErrorIs(t, f.svc.SetPrimaryEmail(ctx, user.ID, dup.ID), ErrEmailInUse)
	})

	t.Run("unknown user", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.SetPrimaryEmail(ctx, uuid.New(), second.ID), ErrUserNotFound)
	})
}

func TestReplaceOrganizations(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	acme := testutil.CreateTestOrg(t, f.db, "Acme")
	globex := testutil.CreateTestOrg(t, f.db, "Globex")

	orgNames := func() []string {
		uow := database.NewFactory(f.db).New(ctx)
		defer uow.Close()
		orgs, err := uow.Users.GetUserOrganizations(user.ID)
		require.NoError(t, err)
		names := make([]string, 0, len(orgs))
		for _, o := range orgs {
			names = append(names, o.Name)
		}
		return names
	}

	require.NoError(t, f.svc.ReplaceOrganizations(ctx, user.ID, []uuid.UUID{acme.ID, globex.ID}))
	assert.ElementsMatch(t, []string{"Acme", "Globex"}, orgNames())

	require.NoError(t, f.svc.ReplaceOrganizations(ctx, user.ID, []uuid.UUID{globex.ID}))
	assert.ElementsMatch(t, []string{"Globex"}, orgNames())

	err := f.svc.ReplaceOrganizations(ctx, user.ID, []uuid.UUID{acme.ID, uuid.New()})
	assert.ErrorIs(t, err, ErrUnknownOrganization)
	assert.ElementsMatch(t, []string{"Globex"}, orgNames())

	require.NoError(t, f.svc.ReplaceOrganizations(ctx, user.ID, nil))
	assert.Empty(t, orgNames())
}

func TestReplaceAndListRoles(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	editor := testutil.CreateTestRole(t, f.db, "Editor")
	viewer := testutil.CreateTestRole(t, f.db, "Viewer")

	roleNames := func() []string {
		roles, err := f.svc.ListRoles(ctx, user.ID)
		require.NoError(t, err)
		names := make([]string, 0, len(roles))
		for _, r := range roles {
			names = append(names, r.Name)
		}
		return names
	}

	require.NoError(t, f.svc.ReplaceRoles(ctx, user.ID, []uuid.UUID{viewer.ID, editor.ID}))
	assert.Equal(t, []string{"Editor", "Viewer"}, roleNames())
	assert.Equal(t, []uuid.UUID{user.ID}, f.invalidator.ids)

	require.NoError(t, f.svc.ReplaceRoles(ctx, user.ID, []uuid.UUID{viewer.ID}))
	assert.Equal(t, []string{"Viewer"}, roleNames())

	assert.ErrorIs(t, f.svc.ReplaceRoles(ctx, user.ID, []uuid.UUID{uuid.New()}), ErrUnknownRole)
	assert.Equal(t, []string{"Viewer"}, roleNames())

	require.NoError(t, f.svc.ReplaceRoles(ctx, user.ID, []uuid.UUID{}))
	assert.Empty(t, roleNames())

	_, err := f.svc.ListRoles(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db)
	email := testutil.CreateTestUserEmail(t, f.db, user, "verify@example.com")

	token, err := auth.NewVerificationToken()
	require.NoError(t, err)
	hash, err := auth.HashPassword(token)
	require.NoError(t, err)

	setToken := func(expires time.Time) {
		uow := database.NewFactory(f.db).New(ctx)
		defer uow.Close()
		require.NoError(t, uow.UserEmails.SetVerificationToken(email.ID, hash, expires))
	}

	t.Run("no token issued", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.VerifyEmail(ctx, email.ID, token), ErrInvalidVerificationToken)
	})

	t.Run("expired", func(t *testing.T) {
		setToken(time.Now().Add(-time.Minute))
		assert.ErrorIs(t, f.svc.VerifyEmail(ctx, email.ID, token), ErrInvalidVerificationToken)
	})

	t.Run("wrong token", func(t *testing.T) {
		setToken(time.Now().Add(time.Hour))
		assert.ErrorIs(t, f.svc.VerifyEmail(ctx, email.ID, "nope"), ErrInvalidVerificationToken)
	})

	t.Run("valid", func(t *testing.T) {
		setToken(time.Now().Add(time.Hour))
		require.NoError(t, f.svc.VerifyEmail(ctx, email.ID, token))

		var got models.UserEmail
		require.NoError(t, f.db.First(&got, "id = ?", email.ID).Error)
		assert.True(t, got.Verified)
		assert.NotNil(t, got.VerifiedAt)
		assert.Nil(t, got.VerificationTokenHash)

		// Repeating is harmless.
		assert.NoError(t, f.svc.VerifyEmail(ctx, email.ID, token))
	})

	t.Run("unknown email", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.VerifyEmail(ctx, uuid.New(), token), ErrUserEmailNotFound)
	})
}

func TestSamePassword(t *testing.T) {
	assert.True(t, samePassword(nil, nil))
	assert.True(t, samePassword(strPtr("a"), strPtr("a")))
	assert.False(t, samePassword(strPtr("a"), strPtr("b")))
	assert.False(t, samePassword(strPtr("a"), nil))
	assert.False(t, samePassword(nil, strPtr("a")))
}
