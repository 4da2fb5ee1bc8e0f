package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pp/parts-pp-sub000/internal/events"
)

func reminderKinds(evs []events.OrderReminderEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func TestSweeper_UnpaidReminderOncePerCadence(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock.Now()
	o := f.newOrder()
	_, err := f.orders.ChoosePaymentMethod(f.ctx, customer, o.ID, MethodBank)
	require.NoError(t, err)

	n, err := f.sweeper.RunOnce(f.ctx, t0.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.sweeper.RunOnce(f.ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.sweeper.RunOnce(f.ctx, t0.Add(24*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.sweeper.RunOnce(f.ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{events.ReminderUnpaidUser, events.ReminderUnpaidUser}, reminderKinds(f.bus.reminders()))
}

func TestSweeper_NoquoteEscalatesToAdminOnce(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock.Now()
	f.paidOrder("30")

	n, err := f.sweeper.RunOnce(f.ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{events.ReminderNoquoteUser, events.ReminderNoquoteAdmin}, reminderKinds(f.bus.reminders()))

	n, err = f.sweeper.RunOnce(f.ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.sweeper.RunOnce(f.ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	last := f.bus.reminders()
	assert.Equal(t, events.ReminderNoquoteUser, last[len(last)-1].Kind)
}

func TestSweeper_PaidTraderUntilAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	o := f.acceptedOrder("100", "60")
	t0 := f.clock.Now()
	_, err := f.orders.ConfirmGoodsPayment(f.ctx, admin, o.ID)
	require.NoError(t, err)

	n, err := f.sweeper.RunOnce(f.ctx, t0.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{events.ReminderPaidTrader}, reminderKinds(f.bus.reminders()))

	_, err = f.orders.AcknowledgeGoodsPayment(f.ctx, trader, o.ID)
	require.NoError(t, err)
	n, err = f.sweeper.RunOnce(f.ctx, t0.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_SkipsClosedOrders(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock.Now()
	o := f.newOrder()
	_, err := f.orders.ChoosePaymentMethod(f.ctx, customer, o.ID, MethodBank)
	require.NoError(t, err)
	_, err = f.orders.Cancel(f.ctx, customer, o.ID, "")
	require.NoError(t, err)

	n, err := f.sweeper.RunOnce(f.ctx, t0.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_HonoursIntervalSetting(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock.Now()
	require.NoError(t, f.settings.Set(f.ctx, admin, SettingUnpaidPing, "3600"))
	o := f.newOrder()
	_, err := f.orders.ChoosePaymentMethod(f.ctx, customer, o.ID, MethodBank)
	require.NoError(t, err)

	n, err := f.sweeper.RunOnce(f.ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
