package channel

import (
	"bytes"
	"encoding/json"
)

// FlexString decodes ids the API sends either as numbers or as strings
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// TaobaoResponse is embedded in every API response
type TaobaoResponse struct {
	ErrorResponse *TaobaoErrorResponse `json:"error_response,omitempty"`
}

// TaobaoErrorResponse is the error payload of a rejected call
type TaobaoErrorResponse struct {
	Code      FlexString `json:"code"`
	Msg       string     `json:"msg"`
	SubCode   string     `json:"sub_code,omitempty"`
	SubMsg    string     `json:"sub_msg,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

// Message returns the most specific error text
func (e *TaobaoErrorResponse) Message() string {
	if e.SubMsg != "" {
		return e.SubMsg
	}
	return e.Msg
}

// ---------------------------------------------------------------------------
// Categories and properties
// ---------------------------------------------------------------------------

// TaobaoItemCatsGetResponse is the response of taobao.itemcats.get
type TaobaoItemCatsGetResponse struct {
	TaobaoResponse
	ItemCatsGetResponse *struct {
		ItemCats *struct {
			ItemCat []TaobaoItemCat `json:"item_cat"`
		} `json:"item_cats,omitempty"`
	} `json:"itemcats_get_response,omitempty"`
}

// TaobaoItemCat is one category node
type TaobaoItemCat struct {
	Cid       FlexString `json:"cid"`
	ParentCid FlexString `json:"parent_cid"`
	Name      string     `json:"name"`
	IsParent  bool       `json:"is_parent"`
}

// TaobaoItemPropsGetResponse is the response of taobao.itemprops.get
type TaobaoItemPropsGetResponse struct {
	TaobaoResponse
	ItemPropsGetResponse *struct {
		ItemProps *struct {
			ItemProp []TaobaoItemProp `json:"item_prop"`
		} `json:"item_props,omitempty"`
	} `json:"itemprops_get_response,omitempty"`
}

// TaobaoItemProp is one category property
type TaobaoItemProp struct {
	Pid        FlexString `json:"pid"`
	Name       string     `json:"name"`
	Must       bool       `json:"must"`
	Multi      bool       `json:"multi"`
	IsEnumProp bool       `json:"is_enum_prop"`
	IsInput    bool       `json:"is_input_prop"`
	PropValues *struct {
		PropValue []TaobaoPropValue `json:"prop_value"`
	} `json:"prop_values,omitempty"`
}

// TaobaoPropValue is one allowed value of an enumerated property
type TaobaoPropValue struct {
	Vid  FlexString `json:"vid"`
	Name string     `json:"name"`
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// TaobaoItemWriteResponse covers taobao.item.add and taobao.item.update
type TaobaoItemWriteResponse struct {
	TaobaoResponse
	ItemAddResponse    *taobaoItemEnvelope `json:"item_add_response,omitempty"`
	ItemUpdateResponse *taobaoItemEnvelope `json:"item_update_response,omitempty"`
}

type taobaoItemEnvelope struct {
	Item *struct {
		NumIid   FlexString `json:"num_iid"`
		Created  string     `json:"created,omitempty"`
		Modified string     `json:"modified,omitempty"`
	} `json:"item,omitempty"`
}

// NumIid returns the item id reported by either call
func (r *TaobaoItemWriteResponse) NumIid() string {
	for _, env := range []*taobaoItemEnvelope{r.ItemAddResponse, r.ItemUpdateResponse} {
		if env != nil && env.Item != nil {
			return string(env.Item.NumIid)
		}
	}
	return ""
}

// TaobaoItemSkusGetResponse is the response of taobao.item.skus.get
type TaobaoItemSkusGetResponse struct {
	TaobaoResponse
	ItemSkusGetResponse *struct {
		Skus *struct {
			Sku []TaobaoSku `json:"sku"`
		} `json:"skus,omitempty"`
	} `json:"item_skus_get_response,omitempty"`
}

// TaobaoSku is one SKU of an item
type TaobaoSku struct {
	SkuID   FlexString `json:"sku_id"`
	NumIid  FlexString `json:"num_iid"`
	OuterID string     `json:"outer_id"`
}
