package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/channelsync/internal/domain/catalog"
	domain "github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/taxonomy"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestTaobaoConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *TaobaoConfig
		wantErr error
	}{
		{
			name:   "valid config",
			config: &TaobaoConfig{AppKey: "key", AppSecret: "secret", SessionKey: "session"},
		},
		{
			name:    "missing app key",
			config:  &TaobaoConfig{AppSecret: "secret", SessionKey: "session"},
			wantErr: ErrTaobaoConfigMissingAppKey,
		},
		{
			name:    "missing app secret",
			config:  &TaobaoConfig{AppKey: "key", SessionKey: "session"},
			wantErr: ErrTaobaoConfigMissingAppSecret,
		},
		{
			name:    "missing session key",
			config:  &TaobaoConfig{AppKey: "key", AppSecret: "secret"},
			wantErr: ErrTaobaoConfigMissingSessionKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TaobaoProductionAPIURL, tt.config.APIBaseURL)
			assert.Equal(t, 30, tt.config.TimeoutSeconds)
		})
	}
}

func TestTaobaoConfig_Sign(t *testing.T) {
	config := &TaobaoConfig{AppSecret: "secret"}
	params := map[string]string{"method": "taobao.itemcats.get", "app_key": "key"}

	sign := config.Sign(params)
	assert.Equal(t, sign, config.Sign(params))
	assert.Len(t, sign, 32)
	assert.Equal(t, strings.ToUpper(sign), sign)
	assert.NotEqual(t, sign, (&TaobaoConfig{AppSecret: "other"}).Sign(params))
}

func TestTaobaoConfigFromAccount(t *testing.T) {
	acc := taobaoAccount(t, "http://example.invalid")
	acc.Settings[SettingSandbox] = true
	acc.Settings[SettingAPIURL] = ""

	cfg, err := TaobaoConfigFromAccount(&acc)
	require.NoError(t, err)
	assert.Equal(t, TaobaoSandboxAPIURL, cfg.APIBaseURL)
	assert.Equal(t, []string{"50010850", "50000671"}, cfg.CategoryIDs)
	assert.Equal(t, "19.90", cfg.DefaultPrice.StringFixed(2))

	acc.Settings[SettingDefaultPrice] = "cheap"
	_, err = TaobaoConfigFromAccount(&acc)
	assert.ErrorIs(t, err, ErrTaobaoConfigInvalidPrice)
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

func taobaoAccount(t *testing.T, apiURL string) domain.Account {
	t.Helper()
	acc, err := domain.NewAccount(domain.TypeTaobao, "tb-main", map[string]any{
		SettingAppKey:          "key",
		SettingAppSecret:       "secret",
		SettingSessionKey:      "session",
		SettingAPIURL:          apiURL,
		SettingCategoryIDs:     "50010850, 50000671",
		SettingDefaultCategory: "50010850",
		SettingDefaultPrice:    "19.9",
	})
	require.NoError(t, err)
	return *acc
}

// taobaoServer answers each API method with a canned body
func taobaoServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.NotEmpty(t, r.PostForm.Get("sign"))
		assert.Equal(t, "key", r.PostForm.Get("app_key"))

		method := r.PostForm.Get("method")
		if method == "taobao.itemprops.get" {
			method += "/" + r.PostForm.Get("cid")
		}
		body, ok := responses[method]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTaobaoAdapter_Discover(t *testing.T) {
	server := taobaoServer(t, map[string]string{
		"taobao.itemcats.get": `{"itemcats_get_response":{"item_cats":{"item_cat":[
			{"cid":50010850,"parent_cid":16,"name":"Dresses","is_parent":false},
			{"cid":"50000671","parent_cid":50010850,"name":"T-Shirts","is_parent":false}]}}}`,
		"taobao.itemprops.get/50010850": `{"itemprops_get_response":{"item_props":{"item_prop":[
			{"pid":20000,"name":"Brand","must":true,"is_enum_prop":true,
			 "prop_values":{"prop_value":[{"vid":1,"name":"Acme"},{"vid":2,"name":"Globex"}]}},
			{"pid":13021751,"name":"Model","must":false,"is_input_prop":true}]}}}`,
		"taobao.itemprops.get/50000671": `{"error_response":{"code":15,"msg":"Remote service error","sub_msg":"category closed"}}`,
	})
	adapter := NewTaobaoAdapter(0)

	payload, err := adapter.Discover(context.Background(), taobaoAccount(t, server.URL))
	require.NoError(t, err)

	require.Len(t, payload.Categories, 2)
	assert.Equal(t, "", payload.Categories[0].ParentExternalID)
	assert.Equal(t, 1, payload.Categories[0].Level)
	assert.Equal(t, "50010850", payload.Categories[1].ParentExternalID)
	assert.Equal(t, 2, payload.Categories[1].Level)

	require.Len(t, payload.Attributes, 2)
	brand := payload.Attributes[0]
	assert.Equal(t, "20000", brand.ExternalID)
	assert.Equal(t, taxonomy.DataTypeList, brand.DataType)
	assert.True(t, brand.Required)
	assert.Equal(t, []string{"50010850"}, brand.Rules.CategoryIDs)
	assert.Equal(t, taxonomy.DataTypeString, payload.Attributes[1].DataType)

	require.Len(t, payload.ValueLists, 1)
	assert.Equal(t, "20000:1", payload.ValueLists[0].Values[0].ExternalID)

	require.Len(t, payload.Warnings, 1)
	assert.Contains(t, payload.Warnings[0], "category closed")
}

func TestTaobaoAdapter_DiscoverHTTPError(t *testing.T) {
	server := taobaoServer(t, map[string]string{})
	adapter := NewTaobaoAdapter(0)

	_, err := adapter.Discover(context.Background(), taobaoAccount(t, server.URL))
	assert.ErrorIs(t, err, ErrChannelRequestFailed)
}

func TestTaobaoAdapter_WrongChannelType(t *testing.T) {
	acc, err := domain.NewAccount(domain.TypeShopify, "shop", nil)
	require.NoError(t, err)

	_, err = NewTaobaoAdapter(0).Discover(context.Background(), *acc)
	assert.ErrorIs(t, err, ErrChannelNotConfigured)
}

func pushRequest(t *testing.T) link.PushRequest {
	t.Helper()
	product, err := catalog.NewProduct("TEE", "T-shirt")
	require.NoError(t, err)
	req := link.PushRequest{Product: *product}
	for _, sku := range []string{"TEE-S", "TEE-M"} {
		v, err := catalog.NewVariant(product.ID, sku, sku)
		require.NoError(t, err)
		req.Variants = append(req.Variants, *v)
	}
	return req
}

func TestTaobaoAdapter_PushCreatesItem(t *testing.T) {
	server := taobaoServer(t, map[string]string{
		"taobao.item.add": `{"item_add_response":{"item":{"num_iid":60112233,"created":"2024-01-01 00:00:00"}}}`,
		"taobao.item.skus.get": `{"item_skus_get_response":{"skus":{"sku":[
			{"sku_id":900001,"num_iid":60112233,"outer_id":"TEE-S"}]}}}`,
	})
	adapter := NewTaobaoAdapter(0)
	req := pushRequest(t)

	res, err := adapter.Push(context.Background(), taobaoAccount(t, server.URL), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "60112233", res.ExternalProductID)
	assert.Equal(t, "900001", res.ExternalVariantIDs[req.Variants[0].ID])
	assert.Equal(t, "TEE-S", res.ExternalSKUs[req.Variants[0].ID])
	_, ok := res.ExternalVariantIDs[req.Variants[1].ID]
	assert.False(t, ok)
}

func TestTaobaoAdapter_PushUpdatesBoundItem(t *testing.T) {
	server := taobaoServer(t, map[string]string{
		"taobao.item.update": `{"item_update_response":{"item":{"num_iid":"60112233","modified":"2024-01-02 00:00:00"}}}`,
	})
	req := pushRequest(t)
	req.Variants = nil
	req.ExternalProductID = "60112233"

	res, err := NewTaobaoAdapter(0).Push(context.Background(), taobaoAccount(t, server.URL), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "60112233", res.ExternalProductID)
}

func TestTaobaoAdapter_PushRejected(t *testing.T) {
	server := taobaoServer(t, map[string]string{
		"taobao.item.add": `{"error_response":{"code":"isv.invalid-parameter","msg":"Invalid arguments","sub_msg":"title too long"}}`,
	})

	res, err := NewTaobaoAdapter(0).Push(context.Background(), taobaoAccount(t, server.URL), pushRequest(t))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "title too long", res.Error)
}

func TestTaobaoAdapter_PushTransportError(t *testing.T) {
	server := taobaoServer(t, map[string]string{})
	server.Close()

	_, err := NewTaobaoAdapter(0).Push(context.Background(), taobaoAccount(t, server.URL), pushRequest(t))
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}
