package business

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
)

func newBinder(t *testing.T) *Binder {
	t.Helper()
	st := memory.New()
	return NewBinder(st.Business(), audit.NewRecorder(st.Audit()))
}

func validInput() RegisterInput {
	return RegisterInput{
		OwnerName:        "Salim Al-Harthy",
		CivilID:          "12345678",
		Phone:            "+96891234567",
		RegistrationDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ActivityType:     "vehicle_workshop",
	}
}

func TestRegister_VerifyRoundTrip_NoOptionals(t *testing.T) {
	t.Parallel()
	b := newBinder(t)
	ctx := context.Background()

	reg, err := b.Register(ctx, validInput())
	require.NoError(t, err)
	require.NotEmpty(t, reg.VerificationHash)

	ok, err := b.Verify(ctx, reg.BusinessID)
	require.NoError(t, err)
	assert.True(t, ok, "hash must be stable for registrations without optional fields")
}

func TestRegister_OptionalFieldsParticipateInHash(t *testing.T) {
	t.Parallel()
	b := newBinder(t)
	ctx := context.Background()

	in := validInput()
	plain, err := b.Register(ctx, in)
	require.NoError(t, err)

	in.TradeLicenseNumber = "1234567"
	withTL, err := b.Register(ctx, in)
	require.NoError(t, err)

	assert.NotEqual(t, plain.VerificationHash, withTL.VerificationHash,
		"presence of an optional field must change the hash")
}

func TestRegister_FieldValidation(t *testing.T) {
	t.Parallel()
	b := newBinder(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
	}{
		{"missing owner", func(in *RegisterInput) { in.OwnerName = "  " }, "owner_name"},
		{"short civil id", func(in *RegisterInput) { in.CivilID = "1234" }, "civil_id"},
		{"civil id letters", func(in *RegisterInput) { in.CivilID = "12A45678" }, "civil_id"},
		{"phone without prefix", func(in *RegisterInput) { in.Phone = "91234567" }, "phone"},
		{"phone too long", func(in *RegisterInput) { in.Phone = "+968912345678" }, "phone"},
		{"zero date", func(in *RegisterInput) { in.RegistrationDate = time.Time{} }, "registration_date"},
		{"missing activity", func(in *RegisterInput) { in.ActivityType = "" }, "business_activity_type"},
		{"bad trade license", func(in *RegisterInput) { in.TradeLicenseNumber = "12345" }, "trade_license_number"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := b.Register(ctx, in)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestRegister_AbsentOptionalsAreNotErrors(t *testing.T) {
	t.Parallel()
	b := newBinder(t)

	in := validInput()
	in.TradeLicenseNumber = ""
	in.Email = ""
	_, err := b.Register(context.Background(), in)
	assert.NoError(t, err)
}

func TestUpdate_RecomputesHash(t *testing.T) {
	t.Parallel()
	b := newBinder(t)
	ctx := context.Background()

	reg, err := b.Register(ctx, validInput())
	require.NoError(t, err)
	oldHash := reg.VerificationHash

	in := validInput()
	in.OwnerName = "Fatma Al-Balushi"
	updated, err := b.Update(ctx, reg.BusinessID, in, "admin@taller.om")
	require.NoError(t, err)

	assert.NotEqual(t, oldHash, updated.VerificationHash)

	ok, err := b.Verify(ctx, reg.BusinessID)
	require.NoError(t, err)
	assert.True(t, ok)
}
