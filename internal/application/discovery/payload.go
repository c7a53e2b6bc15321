package discovery

import (
	"context"

	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/taxonomy"
)

// Adapter fetches the schema of one channel account. Partial failures are
// reported through Payload.Warnings; an error means nothing usable came back.
type Adapter interface {
	Discover(ctx context.Context, account channel.Account) (*Payload, error)
}

// Category is a discovered category node
type Category struct {
	ExternalID       string
	Key              string
	Name             string
	ParentExternalID string
	Level            int
}

// Attribute is a discovered attribute definition
type Attribute struct {
	ExternalID string
	Key        string
	Name       string
	DataType   taxonomy.DataType
	Required   bool
	Rules      taxonomy.Rules
}

// Value is one allowed value of a list attribute
type Value struct {
	ExternalID string
	Value      string
	Name       string
}

// ValueList holds the allowed values of one attribute
type ValueList struct {
	AttributeExternalID string
	Values              []Value
}

// Payload is the raw result of a discovery call
type Payload struct {
	Categories []Category
	Attributes []Attribute
	ValueLists []ValueList
	Warnings   []string
}

// Entries converts the payload into taxonomy entries. Values without an
// external id are keyed by their attribute and literal.
func (p *Payload) Entries() []taxonomy.Entry {
	n := len(p.Categories) + len(p.Attributes)
	for _, vl := range p.ValueLists {
		n += len(vl.Values)
	}
	entries := make([]taxonomy.Entry, 0, n)

	for _, c := range p.Categories {
		entries = append(entries, taxonomy.Entry{
			Type:             taxonomy.EntryTypeCategory,
			ExternalID:       c.ExternalID,
			Key:              c.Key,
			Name:             c.Name,
			Level:            c.Level,
			ParentExternalID: c.ParentExternalID,
		})
	}
	for _, a := range p.Attributes {
		entries = append(entries, taxonomy.Entry{
			Type:       taxonomy.EntryTypeAttribute,
			ExternalID: a.ExternalID,
			Key:        a.Key,
			Name:       a.Name,
			DataType:   a.DataType,
			Required:   a.Required,
			Rules:      a.Rules,
		})
	}
	for _, vl := range p.ValueLists {
		for _, v := range vl.Values {
			id := v.ExternalID
			if id == "" {
				id = vl.AttributeExternalID + ":" + v.Value
			}
			entries = append(entries, taxonomy.Entry{
				Type:             taxonomy.EntryTypeValue,
				ExternalID:       id,
				Key:              v.Value,
				Name:             v.Name,
				ParentExternalID: vl.AttributeExternalID,
			})
		}
	}
	return entries
}

// Counts tallies a payload for the run summary
type Counts struct {
	Categories     int `json:"categories"`
	Fields         int `json:"fields"`
	RequiredFields int `json:"required_fields"`
	OptionalFields int `json:"optional_fields"`
	ValueLists     int `json:"value_lists"`
	Values         int `json:"values"`
}

// Count tallies the payload
func (p *Payload) Count() Counts {
	c := Counts{
		Categories: len(p.Categories),
		Fields:     len(p.Attributes),
		ValueLists: len(p.ValueLists),
	}
	for _, a := range p.Attributes {
		if a.Required {
			c.RequiredFields++
		} else {
			c.OptionalFields++
		}
	}
	for _, vl := range p.ValueLists {
		c.Values += len(vl.Values)
	}
	return c
}

// Add accumulates other into c
func (c *Counts) Add(other Counts) {
	c.Categories += other.Categories
	c.Fields += other.Fields
	c.RequiredFields += other.RequiredFields
	c.OptionalFields += other.OptionalFields
	c.ValueLists += other.ValueLists
	c.Values += other.Values
}
