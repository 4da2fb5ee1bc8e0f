package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ReadsEnvironment(t *testing.T) {
	t.Setenv("PP_BOT_TOKEN", "123:abc")
	t.Setenv("PP_ADMIN_IDS", " 11, 22 ,,33")
	t.Setenv("PARTS_TEAM_CHAT_ID", "-1001")
	t.Setenv("PP_TRADERS_GROUP_ID", "")
	t.Setenv("PP_EXCEL_PATH", "/tmp/book.xlsx")
	t.Setenv("PP_TRANSPORT_TIMEOUT", "5s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, []int64{11, 22, 33}, cfg.Telegram.AdminIDs)
	assert.Equal(t, int64(-1001), cfg.Telegram.TeamChatID)
	assert.Zero(t, cfg.Telegram.TradersGroupID)
	assert.Equal(t, "/tmp/book.xlsx", cfg.Store.ExcelPath)
	assert.Equal(t, "PP", cfg.Store.OrderPrefix)
	assert.Equal(t, 5*time.Second, cfg.Telegram.Timeout)
	assert.True(t, cfg.Telegram.IsAdmin(22))
	assert.False(t, cfg.Telegram.IsAdmin(44))
}

func TestNew_RejectsMalformedAdminIDs(t *testing.T) {
	t.Setenv("PP_ADMIN_IDS", "11,abc")

	_, err := New()
	assert.Error(t, err)
}
