package relmap

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
)

// Fields is the view of a tracked object that change-sets write through to.
// entity.Record implements it; Struct adapts a pointer to a Go struct.
type Fields interface {
	Field(name string) (any, bool)
	SetField(name string, v any)
	UnsetField(name string)
}

// Changes describes a partial update of a stored record: values to set,
// fields to unset and numeric fields to increment atomically.
//
// A nil map means "absent". Empty reports whether all three are absent and is
// recomputed after every mutation.
type Changes struct {
	Values     map[string]any
	Unsets     map[string]bool
	Increments map[string]float64

	empty bool
}

// NewChanges returns a change-set from the given maps. Empty maps are
// normalized to absent.
func NewChanges(values map[string]any, unsets map[string]bool, increments map[string]float64) *Changes {
	c := &Changes{}
	if len(values) > 0 {
		c.Values = values
	}
	if len(unsets) > 0 {
		c.Unsets = unsets
	}
	if len(increments) > 0 {
		c.Increments = increments
	}
	c.detectEmpty()
	return c
}

// Empty reports whether the change-set carries no $set, $unset or $inc.
func (c *Changes) Empty() bool {
	if c == nil {
		return true
	}
	c.detectEmpty()
	return c.empty
}

func (c *Changes) detectEmpty() {
	if len(c.Values) == 0 {
		c.Values = nil
	}
	if len(c.Unsets) == 0 {
		c.Unsets = nil
	}
	if len(c.Increments) == 0 {
		c.Increments = nil
	}
	c.empty = c.Values == nil && c.Unsets == nil && c.Increments == nil
}

// ReplaceSet replaces the whole $set part.
func (c *Changes) ReplaceSet(values map[string]any) {
	c.Values = nil
	if len(values) > 0 {
		c.Values = maps.Clone(values)
	}
	c.detectEmpty()
}

// Set records a new value for the field. A pending unset or increment of the
// same field is dropped, so a single assignment per column is emitted.
func (c *Changes) Set(field string, v any) {
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.Values[field] = v
	delete(c.Unsets, field)
	delete(c.Increments, field)
	c.detectEmpty()
}

// Unset records that the field is to be cleared.
func (c *Changes) Unset(field string) {
	if c.Unsets == nil {
		c.Unsets = make(map[string]bool)
	}
	c.Unsets[field] = true
	delete(c.Values, field)
	delete(c.Increments, field)
	c.detectEmpty()
}

// Increase adds delta to the pending increment of the field. Increments of
// the same field accumulate.
//
// When the field already has a pending value the delta is folded into it and
// no increment is recorded, so the field is written as a plain value and is
// not listed by Returning. A fractional delta turns a pending integer into a
// float64. A pending value that is not numeric is replaced by the increment.
func (c *Changes) Increase(field string, delta float64) {
	if v, ok := c.Values[field]; ok {
		if sum, err := addNumber(v, delta); err == nil {
			c.Values[field] = sum
			return
		}
		if f, ok := toFloat(v); ok {
			c.Values[field] = f + delta
			return
		}
		delete(c.Values, field)
	}
	if c.Increments == nil {
		c.Increments = make(map[string]float64)
	}
	c.Increments[field] += delta
	delete(c.Unsets, field)
	c.detectEmpty()
}

// Has reports whether the field is touched by any part of the change-set.
func (c *Changes) Has(field string) bool {
	if c == nil {
		return false
	}
	_, set := c.Values[field]
	_, unset := c.Unsets[field]
	_, inc := c.Increments[field]
	return set || unset || inc
}

// Returning returns the names of the fields with a pending increment in
// sorted order. Engines that support RETURNING read these back after an
// atomic update. Increments folded into a pending value are not listed.
func (c *Changes) Returning() []string {
	if c == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(c.Increments))
}

// Clone returns a deep copy of the change-set maps.
func (c *Changes) Clone() *Changes {
	if c == nil {
		return nil
	}
	return NewChanges(maps.Clone(c.Values), maps.Clone(c.Unsets), maps.Clone(c.Increments))
}

// ItemChanges is a change-set bound to a live tracked object. Every change is
// mirrored onto the object immediately, so the object and the pending
// change-set never diverge.
type ItemChanges struct {
	*Changes
	item Fields
}

// NewItemChanges returns a change-set bound to item, starting from changes
// (which may be nil).
func NewItemChanges(item Fields, changes *Changes) *ItemChanges {
	if changes == nil {
		changes = NewChanges(nil, nil, nil)
	}
	return &ItemChanges{Changes: changes, item: item}
}

// Item returns the tracked object.
func (c *ItemChanges) Item() Fields { return c.item }

// Set records the value and writes it onto the tracked object.
func (c *ItemChanges) Set(field string, v any) {
	c.Changes.Set(field, v)
	c.item.SetField(field, v)
}

// Unset records the unset and clears the field on the tracked object.
func (c *ItemChanges) Unset(field string) {
	c.Changes.Unset(field)
	c.item.UnsetField(field)
}

// Increase adds delta to the tracked object's field and records the increment.
// It fails without recording anything when the current value is not numeric.
func (c *ItemChanges) Increase(field string, delta float64) error {
	if err := increaseField(c.item, field, delta); err != nil {
		return err
	}
	c.Changes.Increase(field, delta)
	return nil
}

// AtomicChangeInstance wraps a tracked object and exposes increments only.
// Increments are applied to the live object and accumulated in ChangeSet so
// the storage engine can apply them as "x = x + delta" instead of writing back
// a snapshot of the local value.
type AtomicChangeInstance struct {
	ChangeSet *Changes
	object    Fields
}

// AtomicChange returns an AtomicChangeInstance for the object.
func AtomicChange(object Fields) *AtomicChangeInstance {
	return &AtomicChangeInstance{
		ChangeSet: NewChanges(nil, nil, nil),
		object:    object,
	}
}

// Increase adds delta to the live field and to the pending $inc of the field.
// The recorded increment does not depend on local mutations made to the field
// outside of this instance.
func (a *AtomicChangeInstance) Increase(field string, delta float64) error {
	if err := increaseField(a.object, field, delta); err != nil {
		return err
	}
	if a.ChangeSet.Increments == nil {
		a.ChangeSet.Increments = make(map[string]float64)
	}
	a.ChangeSet.Increments[field] += delta
	a.ChangeSet.detectEmpty()
	return nil
}

func increaseField(item Fields, field string, delta float64) error {
	cur, _ := item.Field(field)
	sum, err := addNumber(cur, delta)
	if err != nil {
		return fmt.Errorf("relmap: increase %q: %w", field, err)
	}
	item.SetField(field, sum)
	return nil
}

// addNumber adds delta to v keeping the dynamic type of v. A nil v is
// treated as zero and yields a float64 unless delta is integral. Integer
// values only accept integral deltas.
func addNumber(v any, delta float64) (any, error) {
	integral := delta == math.Trunc(delta)
	if v == nil {
		if integral {
			return int64(delta), nil
		}
		return delta, nil
	}
	rv := reflect.ValueOf(v)
	nv := reflect.New(rv.Type()).Elem()
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !integral {
			return nil, fmt.Errorf("fractional delta %v for integer value of type %T", delta, v)
		}
		nv.SetInt(rv.Int() + int64(delta))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !integral {
			return nil, fmt.Errorf("fractional delta %v for integer value of type %T", delta, v)
		}
		nv.SetUint(uint64(int64(rv.Uint()) + int64(delta)))
	case reflect.Float32, reflect.Float64:
		nv.SetFloat(rv.Float() + delta)
	default:
		return nil, fmt.Errorf("value of type %T is not numeric", v)
	}
	return nv.Interface(), nil
}

// toFloat converts a numeric value to float64.
func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
