package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
)

func TestSettings_Defaults(t *testing.T) {
	f := newFixture(t)
	st, err := f.settings.Load(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, 6*time.Hour, st.RebroadcastCooldown)
	assert.Equal(t, 3, st.RebroadcastMax)
	assert.Equal(t, 72*time.Hour, st.ChatExpiry)
	assert.Equal(t, "99.00", money.Store(st.SubscriptionFee))
}

func TestSettings_SetValidatesAndLogs(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.settings.Set(f.ctx, admin, SettingChatExpiry, "3600"))
	require.NoError(t, f.settings.Set(f.ctx, admin, SettingRebroadcastMax, "5"))
	require.NoError(t, f.settings.Set(f.ctx, admin, SettingSubscriptionFee, "120.5"))

	st, err := f.settings.Load(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, st.ChatExpiry)
	assert.Equal(t, 5, st.RebroadcastMax)
	assert.Equal(t, "120.50", money.Store(st.SubscriptionFee))

	all, err := f.settings.All(f.ctx)
	require.NoError(t, err)
	values := map[string]string{}
	for _, s := range all {
		values[s.Key] = s.Value
	}
	assert.Equal(t, "3600", values[SettingChatExpiry])
	assert.Equal(t, "120.50", values[SettingSubscriptionFee])

	changes := 0
	for _, a := range f.legalActions() {
		if a == entities.LegalSettingChanged {
			changes++
		}
	}
	assert.Equal(t, 3, changes)
}

func TestSettings_Rejects(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		actor entities.Actor
		key   string
		value string
		kind  apperrors.Kind
	}{
		{"customer", customer, SettingRebroadcastMax, "1", apperrors.KindAuthorization},
		{"admin role outside config", entities.Actor{Role: entities.RoleAdmin, ID: 4242}, SettingRebroadcastMax, "1", apperrors.KindAuthorization},
		{"unknown key", admin, "colour", "red", apperrors.KindValidation},
		{"sequence is internal", admin, "order_seq", "5", apperrors.KindValidation},
		{"zero chat expiry", admin, SettingChatExpiry, "0", apperrors.KindValidation},
		{"negative cooldown", admin, SettingRebroadcastCooldown, "-1", apperrors.KindValidation},
		{"three decimals", admin, SettingSubscriptionFee, "10.005", apperrors.KindValidation},
		{"chat expiry beyond duration range", admin, SettingChatExpiry, "10000000000", apperrors.KindValidation},
		{"cooldown beyond duration range", admin, SettingRebroadcastCooldown, "10000000000", apperrors.KindValidation},
		{"rebroadcast max beyond int32", admin, SettingRebroadcastMax, "9999999999", apperrors.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.settings.Set(f.ctx, tc.actor, tc.key, tc.value)
			assert.True(t, apperrors.IsKind(err, tc.kind), err)
		})
	}
	assert.Empty(t, f.legalActions())
}

func TestChatExpiry_UsesCurrentSetting(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	require.NoError(t, f.settings.Set(f.ctx, admin, SettingChatExpiry, "60"))
	o := f.acceptedOrder("100", "60")
	assert.True(t, f.clock.Now().Add(time.Minute).Equal(o.ChatExpiresAt))
}

func TestSettings_OutOfRangeStoredValuesFallBackToDefaults(t *testing.T) {
	f := newFixture(t)
	repo := repositories.NewSettingsRepository(f.store)
	require.NoError(t, repo.SetSetting(f.ctx, SettingChatExpiry, "10000000000"))
	require.NoError(t, repo.SetSetting(f.ctx, SettingRebroadcastCooldown, "9223372036854775807"))

	st, err := f.settings.Load(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, st.ChatExpiry)
	assert.Equal(t, 6*time.Hour, st.RebroadcastCooldown)

	f.eligibleTrader(trader)
	o := f.acceptedOrder("100", "60")
	assert.True(t, f.clock.Now().Add(72*time.Hour).Equal(o.ChatExpiresAt), o.ChatExpiresAt)
}

func TestSettings_LargestCooldownStillBlocksRebroadcast(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	require.NoError(t, f.settings.Set(f.ctx, admin, SettingRebroadcastCooldown, "9223372036"))
	o := f.paidOrder("40")

	_, err := f.orders.Rebroadcast(f.ctx, admin, o.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindState), err)
}
