package models

import "encoding/json"

type EntityKind string

const (
	EntityTaxType  EntityKind = "TAX_TYPE"
	EntityKRAPin   EntityKind = "KRA_PIN"
	EntityTaxForm  EntityKind = "TAX_FORM"
	EntityCurrency EntityKind = "CURRENCY"
	EntityAmount   EntityKind = "AMOUNT"
	EntityDate     EntityKind = "DATE"
)

// EntityKinds is the fixed key set of an EntityBag, in output order.
var EntityKinds = []EntityKind{
	EntityTaxType,
	EntityKRAPin,
	EntityTaxForm,
	EntityCurrency,
	EntityAmount,
	EntityDate,
}

func IsEntityKind(kind EntityKind) bool {
	for _, k := range EntityKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// RawEntity is one labelled span as returned by an extractor.
type RawEntity struct {
	Kind  EntityKind `json:"kind"`
	Value string     `json:"value"`
}

// EntityBag maps every fixed kind to the values found, in discovery order.
// All kinds are always present. The zero value is not valid; use NewEntityBag.
type EntityBag struct {
	values map[EntityKind][]string
}

// NewEntityBag keeps the raw entities whose kind is in EntityKinds and drops
// the rest.
func NewEntityBag(raw []RawEntity) EntityBag {
	bag := EntityBag{values: make(map[EntityKind][]string, len(EntityKinds))}
	for _, k := range EntityKinds {
		bag.values[k] = []string{}
	}
	for _, e := range raw {
		if !IsEntityKind(e.Kind) || e.Value == "" {
			continue
		}
		bag.values[e.Kind] = append(bag.values[e.Kind], e.Value)
	}
	return bag
}

// Get returns a copy of the values for kind.
func (b EntityBag) Get(kind EntityKind) []string {
	vals := b.values[kind]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

func (b EntityBag) Has(kind EntityKind) bool {
	return len(b.values[kind]) > 0
}

func (b EntityBag) First(kind EntityKind) string {
	if vals := b.values[kind]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (b EntityBag) MarshalJSON() ([]byte, error) {
	out := make(map[EntityKind][]string, len(EntityKinds))
	for _, k := range EntityKinds {
		vals := b.values[k]
		if vals == nil {
			vals = []string{}
		}
		out[k] = vals
	}
	return json.Marshal(out)
}

func (b *EntityBag) UnmarshalJSON(data []byte) error {
	var in map[EntityKind][]string
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var raw []RawEntity
	for _, k := range EntityKinds {
		for _, v := range in[k] {
			raw = append(raw, RawEntity{Kind: k, Value: v})
		}
	}
	*b = NewEntityBag(raw)
	return nil
}
