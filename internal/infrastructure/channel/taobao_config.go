package channel

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/erp/channelsync/internal/domain/channel"
)

// TaobaoConfig holds the open platform credentials of one account
type TaobaoConfig struct {
	AppKey     string
	AppSecret  string
	SessionKey string
	// APIBaseURL is the router endpoint (production or sandbox)
	APIBaseURL string
	IsSandbox  bool
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// CategoryIDs are the leaf categories whose attributes are discovered
	CategoryIDs []string
	// DefaultCategoryID is used for products pushed for the first time
	DefaultCategoryID string
	// DefaultPrice is used for products pushed for the first time
	DefaultPrice decimal.Decimal
}

const (
	// TaobaoProductionAPIURL is the production API endpoint
	TaobaoProductionAPIURL = "https://gw.api.taobao.com/router/rest"
	// TaobaoSandboxAPIURL is the sandbox API endpoint
	TaobaoSandboxAPIURL = "https://gw.api.tbsandbox.com/router/rest"
)

// Account settings read by TaobaoConfigFromAccount
const (
	SettingAppKey          = "app_key"
	SettingAppSecret       = "app_secret"
	SettingSessionKey      = "session_key"
	SettingAPIURL          = "api_url"
	SettingSandbox         = "sandbox"
	SettingCategoryIDs     = "category_ids"
	SettingDefaultCategory = "default_category_id"
	SettingDefaultPrice    = "default_price"
)

var (
	ErrTaobaoConfigMissingAppKey     = errors.New("taobao: app key is required")
	ErrTaobaoConfigMissingAppSecret  = errors.New("taobao: app secret is required")
	ErrTaobaoConfigMissingSessionKey = errors.New("taobao: session key is required")
	ErrTaobaoConfigInvalidPrice      = errors.New("taobao: default price is not a decimal")
)

// TaobaoConfigFromAccount builds the configuration from the account settings
func TaobaoConfigFromAccount(account *domain.Account) (*TaobaoConfig, error) {
	sandbox, _ := account.Settings[SettingSandbox].(bool)
	cfg := &TaobaoConfig{
		AppKey:            account.SettingString(SettingAppKey, ""),
		AppSecret:         account.SettingString(SettingAppSecret, ""),
		SessionKey:        account.SettingString(SettingSessionKey, ""),
		APIBaseURL:        account.SettingString(SettingAPIURL, ""),
		IsSandbox:         sandbox,
		CategoryIDs:       splitList(account.SettingString(SettingCategoryIDs, "")),
		DefaultCategoryID: account.SettingString(SettingDefaultCategory, ""),
	}
	if p := account.SettingString(SettingDefaultPrice, ""); p != "" {
		price, err := decimal.NewFromString(p)
		if err != nil {
			return nil, ErrTaobaoConfigInvalidPrice
		}
		cfg.DefaultPrice = price
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration and fills in defaults
func (c *TaobaoConfig) Validate() error {
	if c.AppKey == "" {
		return ErrTaobaoConfigMissingAppKey
	}
	if c.AppSecret == "" {
		return ErrTaobaoConfigMissingAppSecret
	}
	if c.SessionKey == "" {
		return ErrTaobaoConfigMissingSessionKey
	}
	if c.APIBaseURL == "" {
		if c.IsSandbox {
			c.APIBaseURL = TaobaoSandboxAPIURL
		} else {
			c.APIBaseURL = TaobaoProductionAPIURL
		}
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// Sign computes the request signature: upper-case MD5 of
// secret + sorted key/value pairs + secret. MD5 is mandated by the API.
func (c *TaobaoConfig) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(c.AppSecret)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}
	builder.WriteString(c.AppSecret)

	hash := md5.Sum([]byte(builder.String()))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
