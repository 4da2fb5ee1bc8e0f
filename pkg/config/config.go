package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type TelegramConfig struct {
	BotToken        string
	AdminIDs        []int64
	TeamChatID      int64
	TradersGroupID  int64
	WebhookBaseURL  string
	Timeout         time.Duration
	PollTimeoutSecs int
}

type StoreConfig struct {
	ExcelPath   string
	OrderPrefix string
}

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	Address  string
	Password string
}

type LogConfig struct {
	Dir   string
	Debug bool
}

type Config struct {
	Telegram TelegramConfig
	Store    StoreConfig
	Server   ServerConfig
	Redis    RedisConfig
	Log      LogConfig
}

func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or could not be loaded.")
	}

	adminIDs, err := parseIDList(getEnv("PP_ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("PP_ADMIN_IDS: %w", err)
	}
	teamChatID, err := parseOptionalID(getEnv("PARTS_TEAM_CHAT_ID", ""))
	if err != nil {
		return nil, fmt.Errorf("PARTS_TEAM_CHAT_ID: %w", err)
	}
	tradersGroupID, err := parseOptionalID(getEnv("PP_TRADERS_GROUP_ID", ""))
	if err != nil {
		return nil, fmt.Errorf("PP_TRADERS_GROUP_ID: %w", err)
	}
	timeout, err := time.ParseDuration(getEnv("PP_TRANSPORT_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("PP_TRANSPORT_TIMEOUT: %w", err)
	}

	return &Config{
		Telegram: TelegramConfig{
			BotToken:        getEnv("PP_BOT_TOKEN", ""),
			AdminIDs:        adminIDs,
			TeamChatID:      teamChatID,
			TradersGroupID:  tradersGroupID,
			WebhookBaseURL:  getEnv("PP_WEBHOOK_BASE_URL", ""),
			Timeout:         timeout,
			PollTimeoutSecs: 25,
		},
		Store: StoreConfig{
			ExcelPath:   getEnv("PP_EXCEL_PATH", "pp_data.xlsx"),
			OrderPrefix: getEnv("PP_ORDER_PREFIX", "PP"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Log: LogConfig{
			Dir:   getEnv("PP_LOG_DIR", "./logs"),
			Debug: strings.Contains(strings.ToLower(getEnv("DEBUG", "")), "bot"),
		},
	}, nil
}

// IsAdmin reports whether userID is listed in PP_ADMIN_IDS.
func (c TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
