// Package channel holds the marketplace adapters used by discovery and
// publishing.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/erp/channelsync/internal/application/discovery"
	domain "github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/taxonomy"
)

// SettingSchemaFile overrides the snapshot path of one account
const SettingSchemaFile = "schema_file"

// ErrSchemaNotFound is returned when an account has no schema snapshot
var ErrSchemaNotFound = errors.New("channel: schema snapshot not found")

// schemaFile is the YAML layout of a schema snapshot
type schemaFile struct {
	Categories []categoryDoc  `yaml:"categories"`
	Attributes []attributeDoc `yaml:"attributes"`
	Warnings   []string       `yaml:"warnings"`
}

type categoryDoc struct {
	ID     string `yaml:"id" validate:"required"`
	Key    string `yaml:"key"`
	Name   string `yaml:"name" validate:"required"`
	Parent string `yaml:"parent"`
}

type attributeDoc struct {
	ID         string     `yaml:"id" validate:"required"`
	Key        string     `yaml:"key" validate:"required"`
	Name       string     `yaml:"name"`
	Type       string     `yaml:"type" validate:"required"`
	Required   bool       `yaml:"required"`
	Categories []string   `yaml:"categories"`
	Rules      rulesDoc   `yaml:"rules"`
	Values     []valueDoc `yaml:"values" validate:"dive"`
}

type rulesDoc struct {
	Choices    []string `yaml:"choices"`
	MinLength  *int     `yaml:"min_length" validate:"omitempty,gte=0"`
	MaxLength  *int     `yaml:"max_length" validate:"omitempty,gte=0"`
	Min        string   `yaml:"min"`
	Max        string   `yaml:"max"`
	Pattern    string   `yaml:"pattern"`
	MultiValue bool     `yaml:"multi_value"`
	Separator  string   `yaml:"separator"`
}

type valueDoc struct {
	ID    string `yaml:"id"`
	Value string `yaml:"value" validate:"required"`
	Name  string `yaml:"name"`
}

// FileDiscoveryAdapter reads schema snapshots exported from a channel, one
// YAML file per account named <dir>/<account-name>.yaml. Malformed entries
// are skipped and reported as warnings.
type FileDiscoveryAdapter struct {
	dir      string
	validate *validator.Validate
}

// NewFileDiscoveryAdapter creates an adapter reading snapshots from dir
func NewFileDiscoveryAdapter(dir string) *FileDiscoveryAdapter {
	return &FileDiscoveryAdapter{
		dir:      dir,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

var _ discovery.Adapter = (*FileDiscoveryAdapter)(nil)

// Path returns the snapshot path for account
func (a *FileDiscoveryAdapter) Path(account domain.Account) string {
	if p := account.SettingString(SettingSchemaFile, ""); p != "" {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(a.dir, p)
	}
	return filepath.Join(a.dir, account.Name+".yaml")
}

// Discover implements discovery.Adapter
func (a *FileDiscoveryAdapter) Discover(ctx context.Context, account domain.Account) (*discovery.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := a.Path(account)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, path)
		}
		return nil, fmt.Errorf("channel: read schema snapshot: %w", err)
	}

	var doc schemaFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("channel: parse schema snapshot %s: %w", path, err)
	}
	return a.toPayload(&doc), nil
}

func (a *FileDiscoveryAdapter) toPayload(doc *schemaFile) *discovery.Payload {
	payload := &discovery.Payload{Warnings: append([]string(nil), doc.Warnings...)}
	warn := func(format string, args ...any) {
		payload.Warnings = append(payload.Warnings, fmt.Sprintf(format, args...))
	}

	parents := make(map[string]string, len(doc.Categories))
	for i, c := range doc.Categories {
		if err := a.validate.Struct(c); err != nil {
			warn("category #%d skipped: %v", i+1, err)
			continue
		}
		if _, dup := parents[c.ID]; dup {
			warn("category %s skipped: duplicate id", c.ID)
			continue
		}
		parents[c.ID] = c.Parent
	}
	seen := make(map[string]bool, len(parents))
	for _, c := range doc.Categories {
		if _, ok := parents[c.ID]; !ok || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		key := c.Key
		if key == "" {
			key = c.ID
		}
		payload.Categories = append(payload.Categories, discovery.Category{
			ExternalID:       c.ID,
			Key:              key,
			Name:             c.Name,
			ParentExternalID: c.Parent,
			Level:            categoryLevel(c.ID, parents),
		})
	}

	attrSeen := make(map[string]bool, len(doc.Attributes))
	for i, d := range doc.Attributes {
		if err := a.validate.Struct(d); err != nil {
			warn("attribute #%d skipped: %v", i+1, err)
			continue
		}
		if attrSeen[d.ID] {
			warn("attribute %s skipped: duplicate id", d.ID)
			continue
		}
		attr, err := toAttribute(d)
		if err != nil {
			warn("attribute %s skipped: %v", d.ID, err)
			continue
		}
		attrSeen[d.ID] = true
		payload.Attributes = append(payload.Attributes, attr)

		if len(d.Values) > 0 {
			vl := discovery.ValueList{AttributeExternalID: d.ID}
			for _, v := range d.Values {
				vl.Values = append(vl.Values, discovery.Value{ExternalID: v.ID, Value: v.Value, Name: v.Name})
			}
			payload.ValueLists = append(payload.ValueLists, vl)
		}
	}
	return payload
}

func toAttribute(d attributeDoc) (discovery.Attribute, error) {
	dataType := taxonomy.DataType(strings.ToUpper(strings.TrimSpace(d.Type)))
	if !dataType.IsValid() {
		return discovery.Attribute{}, fmt.Errorf("unknown type %q", d.Type)
	}
	rules := taxonomy.Rules{
		Choices:     d.Rules.Choices,
		MinLength:   d.Rules.MinLength,
		MaxLength:   d.Rules.MaxLength,
		Pattern:     d.Rules.Pattern,
		MultiValue:  d.Rules.MultiValue,
		Separator:   d.Rules.Separator,
		CategoryIDs: d.Categories,
	}
	var err error
	if rules.Min, err = parseBound(d.Rules.Min); err != nil {
		return discovery.Attribute{}, fmt.Errorf("min: %w", err)
	}
	if rules.Max, err = parseBound(d.Rules.Max); err != nil {
		return discovery.Attribute{}, fmt.Errorf("max: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return discovery.Attribute{}, err
	}
	name := d.Name
	if name == "" {
		name = d.Key
	}
	return discovery.Attribute{
		ExternalID: d.ID,
		Key:        d.Key,
		Name:       name,
		DataType:   dataType,
		Required:   d.Required,
		Rules:      rules,
	}, nil
}

func parseBound(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// categoryLevel counts the ancestors of id; roots are level 1. A cycle or a
// parent outside the snapshot stops the walk.
func categoryLevel(id string, parents map[string]string) int {
	level := 1
	visited := map[string]bool{id: true}
	for p := parents[id]; p != ""; p = parents[p] {
		if _, ok := parents[p]; !ok || visited[p] {
			break
		}
		visited[p] = true
		level++
	}
	return level
}
