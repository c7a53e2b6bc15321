package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/erp/channelsync/internal/application/discovery"
	domain "github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
)

// maxResponseSize caps a single API response (10MB)
const maxResponseSize = 10 * 1024 * 1024

var (
	ErrChannelUnavailable     = errors.New("channel: platform unavailable")
	ErrChannelRequestFailed   = errors.New("channel: request failed")
	ErrChannelInvalidResponse = errors.New("channel: invalid response")
	ErrChannelNotConfigured   = errors.New("channel: account is not configured for this channel")
)

// APIError is a call the platform rejected
type APIError struct {
	Method string
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("taobao: %s rejected: %s (%s)", e.Method, e.Msg, e.Code)
}

// TaobaoAdapter discovers the category schema of Taobao/Tmall accounts and
// pushes catalog products to them
type TaobaoAdapter struct {
	httpClient *http.Client
	now        func() time.Time

	// configs caches the parsed settings per account
	configs map[uuid.UUID]*TaobaoConfig
	mu      sync.RWMutex
}

// NewTaobaoAdapter creates a new TaobaoAdapter
func NewTaobaoAdapter(timeout time.Duration) *TaobaoAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TaobaoAdapter{
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		configs:    make(map[uuid.UUID]*TaobaoConfig),
	}
}

var (
	_ discovery.Adapter = (*TaobaoAdapter)(nil)
	_ link.PushAdapter  = (*TaobaoAdapter)(nil)
)

func (a *TaobaoAdapter) configFor(account *domain.Account) (*TaobaoConfig, error) {
	if account.Type != domain.TypeTaobao {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, account.Type)
	}
	a.mu.RLock()
	config, ok := a.configs[account.ID]
	a.mu.RUnlock()
	if ok {
		return config, nil
	}

	config, err := TaobaoConfigFromAccount(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotConfigured, err)
	}
	a.mu.Lock()
	a.configs[account.ID] = config
	a.mu.Unlock()
	return config, nil
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

const (
	itemCatFields  = "cid,parent_cid,name,is_parent"
	itemPropFields = "pid,name,must,multi,is_enum_prop,is_input_prop,prop_values"
)

// Discover implements discovery.Adapter. Without configured category ids
// only the top-level categories are returned. A category whose properties
// cannot be read is reported as a warning.
func (a *TaobaoAdapter) Discover(ctx context.Context, account domain.Account) (*discovery.Payload, error) {
	config, err := a.configFor(&account)
	if err != nil {
		return nil, err
	}

	params := map[string]string{"method": "taobao.itemcats.get", "fields": itemCatFields}
	if len(config.CategoryIDs) > 0 {
		params["cids"] = strings.Join(config.CategoryIDs, ",")
	} else {
		params["parent_cid"] = "0"
	}
	var cats TaobaoItemCatsGetResponse
	if err := a.call(ctx, config, params, &cats); err != nil {
		return nil, err
	}

	payload := &discovery.Payload{}
	if cats.ItemCatsGetResponse == nil || cats.ItemCatsGetResponse.ItemCats == nil {
		payload.Warnings = append(payload.Warnings, "no categories returned")
		return payload, nil
	}

	known := make(map[string]bool)
	for _, c := range cats.ItemCatsGetResponse.ItemCats.ItemCat {
		known[string(c.Cid)] = true
	}
	for _, c := range cats.ItemCatsGetResponse.ItemCats.ItemCat {
		parent := string(c.ParentCid)
		if parent == "0" || !known[parent] {
			parent = ""
		}
		level := 1
		if parent != "" {
			level = 2
		}
		payload.Categories = append(payload.Categories, discovery.Category{
			ExternalID:       string(c.Cid),
			Key:              string(c.Cid),
			Name:             c.Name,
			ParentExternalID: parent,
			Level:            level,
		})
	}

	if len(config.CategoryIDs) == 0 {
		payload.Warnings = append(payload.Warnings, "no category_ids configured, attributes not discovered")
		return payload, nil
	}

	attrIndex := make(map[string]int)
	for _, cid := range config.CategoryIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		props, err := a.categoryProps(ctx, config, cid)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				payload.Warnings = append(payload.Warnings, fmt.Sprintf("category %s: %s", cid, apiErr.Msg))
				continue
			}
			return nil, err
		}
		for _, p := range props {
			a.addProp(payload, attrIndex, cid, p)
		}
	}
	return payload, nil
}

func (a *TaobaoAdapter) categoryProps(ctx context.Context, config *TaobaoConfig, cid string) ([]TaobaoItemProp, error) {
	var resp TaobaoItemPropsGetResponse
	err := a.call(ctx, config, map[string]string{
		"method": "taobao.itemprops.get",
		"fields": itemPropFields,
		"cid":    cid,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ItemPropsGetResponse == nil || resp.ItemPropsGetResponse.ItemProps == nil {
		return nil, nil
	}
	return resp.ItemPropsGetResponse.ItemProps.ItemProp, nil
}

// addProp merges a property into the payload. The same pid shared by
// several categories becomes one attribute scoped to all of them.
func (a *TaobaoAdapter) addProp(payload *discovery.Payload, index map[string]int, cid string, p TaobaoItemProp) {
	pid := string(p.Pid)
	if i, ok := index[pid]; ok {
		attr := &payload.Attributes[i]
		attr.Rules.CategoryIDs = append(attr.Rules.CategoryIDs, cid)
		attr.Required = attr.Required || p.Must
		return
	}

	dataType := taxonomy.DataTypeString
	if p.IsEnumProp && !p.IsInput {
		dataType = taxonomy.DataTypeList
	}
	index[pid] = len(payload.Attributes)
	payload.Attributes = append(payload.Attributes, discovery.Attribute{
		ExternalID: pid,
		Key:        "prop_" + pid,
		Name:       p.Name,
		DataType:   dataType,
		Required:   p.Must,
		Rules:      taxonomy.Rules{MultiValue: p.Multi, CategoryIDs: []string{cid}},
	})

	if p.PropValues == nil || len(p.PropValues.PropValue) == 0 {
		return
	}
	vl := discovery.ValueList{AttributeExternalID: pid}
	for _, v := range p.PropValues.PropValue {
		vl.Values = append(vl.Values, discovery.Value{
			ExternalID: pid + ":" + string(v.Vid),
			Value:      v.Name,
			Name:       v.Name,
		})
	}
	payload.ValueLists = append(payload.ValueLists, vl)
}

// ---------------------------------------------------------------------------
// Push
// ---------------------------------------------------------------------------

// Push implements link.PushAdapter. An item already bound is updated,
// otherwise it is created in the default category. Variants are matched to
// the returned SKUs by outer id. A rejected call is reported in the result.
func (a *TaobaoAdapter) Push(ctx context.Context, account domain.Account, req link.PushRequest) (link.PushResult, error) {
	config, err := a.configFor(&account)
	if err != nil {
		return link.PushResult{}, err
	}

	params := map[string]string{
		"title":    req.Product.Name,
		"outer_id": req.Product.SKU,
	}
	if req.ExternalProductID != "" {
		params["method"] = "taobao.item.update"
		params["num_iid"] = req.ExternalProductID
	} else {
		if config.DefaultCategoryID == "" {
			return link.PushResult{Error: "no default_category_id configured for new items"}, nil
		}
		params["method"] = "taobao.item.add"
		params["cid"] = config.DefaultCategoryID
		params["type"] = "fixed"
		params["stuff_status"] = "new"
		params["num"] = "0"
		params["price"] = config.DefaultPrice.StringFixed(2)
	}
	if len(req.Variants) > 0 {
		outer := make([]string, len(req.Variants))
		for i, v := range req.Variants {
			outer[i] = v.SKU
		}
		params["sku_outer_ids"] = strings.Join(outer, ",")
	}

	var written TaobaoItemWriteResponse
	if err := a.call(ctx, config, params, &written); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return link.PushResult{Error: apiErr.Msg}, nil
		}
		return link.PushResult{}, err
	}
	numIid := written.NumIid()
	if numIid == "" {
		return link.PushResult{}, fmt.Errorf("%w: %s returned no num_iid", ErrChannelInvalidResponse, params["method"])
	}

	result := link.PushResult{
		Success:            true,
		ExternalProductID:  numIid,
		ExternalVariantIDs: make(map[uuid.UUID]string),
		ExternalSKUs:       make(map[uuid.UUID]string),
		Metadata:           map[string]any{"pushed_at": a.now().UTC().Format(time.RFC3339)},
	}
	if len(req.Variants) == 0 {
		return result, nil
	}

	var skus TaobaoItemSkusGetResponse
	if err := a.call(ctx, config, map[string]string{
		"method":   "taobao.item.skus.get",
		"fields":   "sku_id,num_iid,outer_id",
		"num_iids": numIid,
	}, &skus); err != nil {
		// the item exists; variants stay pending until the next push
		result.Metadata["sku_error"] = err.Error()
		return result, nil
	}
	if skus.ItemSkusGetResponse == nil || skus.ItemSkusGetResponse.Skus == nil {
		return result, nil
	}
	byOuter := make(map[string]string)
	for _, s := range skus.ItemSkusGetResponse.Skus.Sku {
		byOuter[s.OuterID] = string(s.SkuID)
	}
	for _, v := range req.Variants {
		if id, ok := byOuter[v.SKU]; ok && id != "" {
			result.ExternalVariantIDs[v.ID] = id
			result.ExternalSKUs[v.ID] = v.SKU
		}
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// call signs and sends one API request and decodes the response into out.
// A platform error response is returned as *APIError.
func (a *TaobaoAdapter) call(ctx context.Context, config *TaobaoConfig, params map[string]string, out any) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "taobao", params["method"],
		telemetry.WithSpanKind(trace.SpanKindClient))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	body, err := a.doRequest(ctx, config, params)
	if err != nil {
		return err
	}

	var envelope TaobaoResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelInvalidResponse, err)
	}
	if envelope.ErrorResponse != nil {
		return &APIError{
			Method: params["method"],
			Code:   string(envelope.ErrorResponse.Code),
			Msg:    envelope.ErrorResponse.Message(),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelInvalidResponse, err)
	}
	return nil
}

func (a *TaobaoAdapter) doRequest(ctx context.Context, config *TaobaoConfig, params map[string]string) ([]byte, error) {
	params["app_key"] = config.AppKey
	params["session"] = config.SessionKey
	params["timestamp"] = a.now().Format("2006-01-02 15:04:05")
	params["format"] = "json"
	params["v"] = "2.0"
	params["sign_method"] = "md5"
	params["sign"] = config.Sign(params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.APIBaseURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("taobao: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("taobao: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrChannelRequestFailed, resp.StatusCode)
	}
	return body, nil
}
