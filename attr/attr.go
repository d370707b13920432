// Package attr implements the typed, multi-valued attribute store shared by
// every IPP object (system, printer, job): a named, tag-typed sequence of one
// or more values, grouped by the standard IPP attribute groups.
package attr

import (
	"fmt"
	"time"

	"github.com/OpenPrinting/goipp"
)

// Tag identifies the semantic type of an attribute's values (integer, enum,
// keyword, name, text, URI, boolean, resolution, date-time, range,
// octet-string, collection, ...). It is a thin wrapper over goipp.Tag so
// callers never need to import the codec package directly.
type Tag = goipp.Tag

// Value is anything the underlying codec knows how to encode: integers,
// strings, booleans, resolutions, ranges, collections, and so on.
type Value = goipp.Value

// Group identifies which of the standard attribute groups an attribute
// belongs to.
type Group uint8

const (
	GroupOperation Group = iota
	GroupJob
	GroupPrinter
	GroupSubscription
	GroupUnsupported
	GroupSystem
)

var groupTags = map[Group]goipp.Tag{
	GroupOperation:     goipp.TagOperationGroup,
	GroupJob:           goipp.TagJobGroup,
	GroupPrinter:       goipp.TagPrinterGroup,
	GroupSubscription:  goipp.TagSubscriptionGroup,
	GroupUnsupported:   goipp.TagUnsupportedGroup,
	GroupSystem:        goipp.TagSystemGroup,
}

func (g Group) ipp() goipp.Tag {
	t, ok := groupTags[g]
	if !ok {
		return goipp.TagPrinterGroup
	}
	return t
}

// Attribute is a named, tag-typed, ordered sequence of one or more values.
// Attribute names are unique within the Collection that holds them.
type Attribute struct {
	Name string
	Tag  Tag
	Vals []Value

	// Constant marks an attribute whose storage is owned by a static
	// table (driver capability data, etc.) and must never be mutated or
	// freed by a caller that merely copied it into a response.
	Constant bool
}

// Value1 returns the attribute's first value, or nil if it has none.
func (a Attribute) Value1() Value {
	if len(a.Vals) == 0 {
		return nil
	}
	return a.Vals[0]
}

// Collection is an ordered, named set of attributes: the in-memory
// representation of one IPP object (or one nested collection value).
// Insertion order is preserved by iterate().
type Collection struct {
	order []string
	attrs map[string]Attribute
}

// New returns an empty attribute collection (create_empty()).
func New() *Collection {
	return &Collection{attrs: make(map[string]Attribute)}
}

// Add appends one or more values to name, creating the attribute (and
// recording its tag) if it does not yet exist. Calling Add again for an
// existing name appends additional values under the same tag.
func (c *Collection) Add(tag Tag, name string, values ...Value) {
	if c.attrs == nil {
		c.attrs = make(map[string]Attribute)
	}
	a, ok := c.attrs[name]
	if !ok {
		c.order = append(c.order, name)
		a = Attribute{Name: name, Tag: tag}
	}
	a.Vals = append(a.Vals, values...)
	c.attrs[name] = a
}

// Set replaces name's tag and values wholesale, preserving its position if
// it already existed.
func (c *Collection) Set(tag Tag, name string, values ...Value) {
	if c.attrs == nil {
		c.attrs = make(map[string]Attribute)
	}
	if _, ok := c.attrs[name]; !ok {
		c.order = append(c.order, name)
	}
	c.attrs[name] = Attribute{Name: name, Tag: tag, Vals: values}
}

// SetAttribute stores attr wholesale, preserving insertion position on
// overwrite.
func (c *Collection) SetAttribute(attr Attribute) {
	if c.attrs == nil {
		c.attrs = make(map[string]Attribute)
	}
	if _, ok := c.attrs[attr.Name]; !ok {
		c.order = append(c.order, attr.Name)
	}
	c.attrs[attr.Name] = attr
}

// Find returns the attribute named name. If tag is non-zero, the attribute
// must also carry that tag or ok is false. This is find(name, tag?).
func (c *Collection) Find(name string, tag Tag) (Attribute, bool) {
	a, ok := c.attrs[name]
	if !ok {
		return Attribute{}, false
	}
	if tag != goipp.TagZero && a.Tag != tag {
		return Attribute{}, false
	}
	return a, true
}

// Has reports whether name is present, regardless of tag.
func (c *Collection) Has(name string) bool {
	_, ok := c.attrs[name]
	return ok
}

// SetValue replaces the value at index within name's value sequence.
func (c *Collection) SetValue(name string, index int, v Value) error {
	a, ok := c.attrs[name]
	if !ok {
		return fmt.Errorf("attr: no such attribute %q", name)
	}
	if index < 0 || index >= len(a.Vals) {
		return fmt.Errorf("attr: index %d out of range for %q (%d values)", index, name, len(a.Vals))
	}
	a.Vals[index] = v
	c.attrs[name] = a
	return nil
}

// Delete removes name, if present.
func (c *Collection) Delete(name string) {
	if _, ok := c.attrs[name]; !ok {
		return
	}
	delete(c.attrs, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Iterate calls fn for every attribute in insertion order, stopping early if
// fn returns false.
func (c *Collection) Iterate(fn func(Attribute) bool) {
	for _, name := range c.order {
		if a, ok := c.attrs[name]; ok {
			if !fn(a) {
				return
			}
		}
	}
}

// Len reports the number of distinct attribute names held.
func (c *Collection) Len() int {
	return len(c.order)
}

// Clone returns a deep-enough copy: attribute value slices are copied so
// mutating the clone's values never affects the source (used when a driver
// capability table must hand out a mutable-looking snapshot of constant
// data).
func (c *Collection) Clone() *Collection {
	out := New()
	c.Iterate(func(a Attribute) bool {
		vals := make([]Value, len(a.Vals))
		copy(vals, a.Vals)
		out.SetAttribute(Attribute{Name: a.Name, Tag: a.Tag, Vals: vals, Constant: a.Constant})
		return true
	})
	return out
}

// CopyInto copies attributes matching filter from c into dest. The group an
// attribute lands in is the one dest belongs to, chosen by the caller that
// assembles the response. sourceTagMask, if non-empty, restricts the copy to
// attributes whose tag appears in the mask; an empty mask copies any tag.
func (c *Collection) CopyInto(dest *goipp.Attributes, filter RequestedAttributes, sourceTagMask []Tag) {
	c.Iterate(func(a Attribute) bool {
		if !filter.Matches(a.Name) {
			return true
		}
		if len(sourceTagMask) > 0 && !tagIn(a.Tag, sourceTagMask) {
			return true
		}
		dest.Add(goipp.Attribute{Name: a.Name, Values: valuesOf(a)})
		return true
	})
}

func tagIn(t Tag, mask []Tag) bool {
	for _, m := range mask {
		if m == t {
			return true
		}
	}
	return false
}

func valuesOf(a Attribute) goipp.Values {
	var vs goipp.Values
	for _, v := range a.Vals {
		vs.Add(a.Tag, v)
	}
	return vs
}

// ToIPP renders the entire collection as a goipp.Attributes slice, each
// attribute carrying its own value tag (goipp.Attributes does not carry a
// group tag per attribute; the group tag lives on the enclosing
// goipp.Group/AttributeGroup, set by the caller assembling the response).
func (c *Collection) ToIPP() goipp.Attributes {
	var out goipp.Attributes
	c.Iterate(func(a Attribute) bool {
		out.Add(goipp.Attribute{Name: a.Name, Values: valuesOf(a)})
		return true
	})
	return out
}

// FromIPP builds a new Collection from a decoded goipp.Attributes sequence;
// where a name repeats, the later attribute replaces the earlier one.
func FromIPP(in goipp.Attributes) *Collection {
	c := New()
	for _, a := range in {
		var vals []Value
		var tag Tag
		for _, v := range a.Values {
			tag = v.T
			vals = append(vals, v.V)
		}
		c.SetAttribute(Attribute{Name: a.Name, Tag: tag, Vals: vals})
	}
	return c
}

// --- typed accessors -------------------------------------------------------
//
// Each returns a mismatch error rather than panicking or silently returning
// a zero value, per the "model as a sum type" design guidance.

func (c *Collection) GetInteger(name string) (int32, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok || len(a.Vals) == 0 {
		return 0, fmt.Errorf("attr: %q not present", name)
	}
	i, ok := a.Vals[0].(goipp.Integer)
	if !ok {
		return 0, fmt.Errorf("attr: %q is %T, not integer", name, a.Vals[0])
	}
	return int32(i), nil
}

func (c *Collection) GetBoolean(name string) (bool, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok || len(a.Vals) == 0 {
		return false, fmt.Errorf("attr: %q not present", name)
	}
	b, ok := a.Vals[0].(goipp.Boolean)
	if !ok {
		return false, fmt.Errorf("attr: %q is %T, not boolean", name, a.Vals[0])
	}
	return bool(b), nil
}

func (c *Collection) GetString(name string) (string, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok || len(a.Vals) == 0 {
		return "", fmt.Errorf("attr: %q not present", name)
	}
	s, ok := a.Vals[0].(goipp.String)
	if !ok {
		return "", fmt.Errorf("attr: %q is %T, not string", name, a.Vals[0])
	}
	return string(s), nil
}

// Keyword is IPP's "keyword" syntax, wire-identical to a string value.
func (c *Collection) GetKeyword(name string) (string, error) { return c.GetString(name) }

func (c *Collection) GetStrings(name string) ([]string, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok {
		return nil, fmt.Errorf("attr: %q not present", name)
	}
	out := make([]string, 0, len(a.Vals))
	for _, v := range a.Vals {
		s, ok := v.(goipp.String)
		if !ok {
			return nil, fmt.Errorf("attr: %q has a non-string member %T", name, v)
		}
		out = append(out, string(s))
	}
	return out, nil
}

func (c *Collection) GetRange(name string) (goipp.Range, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok || len(a.Vals) == 0 {
		return goipp.Range{}, fmt.Errorf("attr: %q not present", name)
	}
	r, ok := a.Vals[0].(goipp.Range)
	if !ok {
		return goipp.Range{}, fmt.Errorf("attr: %q is %T, not range", name, a.Vals[0])
	}
	return r, nil
}

func (c *Collection) GetResolution(name string) (goipp.Resolution, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok || len(a.Vals) == 0 {
		return goipp.Resolution{}, fmt.Errorf("attr: %q not present", name)
	}
	r, ok := a.Vals[0].(goipp.Resolution)
	if !ok {
		return goipp.Resolution{}, fmt.Errorf("attr: %q is %T, not resolution", name, a.Vals[0])
	}
	return r, nil
}

func (c *Collection) GetCollection(name string) (*Collection, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok || len(a.Vals) == 0 {
		return nil, fmt.Errorf("attr: %q not present", name)
	}
	col, ok := a.Vals[0].(goipp.Collection)
	if !ok {
		return nil, fmt.Errorf("attr: %q is %T, not collection", name, a.Vals[0])
	}
	return FromIPP(goipp.Attributes(col)), nil
}

func (c *Collection) GetTime(name string) (time.Time, error) {
	a, ok := c.Find(name, goipp.TagZero)
	if !ok || len(a.Vals) == 0 {
		return time.Time{}, fmt.Errorf("attr: %q not present", name)
	}
	t, ok := a.Vals[0].(goipp.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("attr: %q is %T, not dateTime", name, a.Vals[0])
	}
	return t.Time, nil
}
