package entity

// Record is a hydrated or serialized entity: field name to value.
// Populated relations are stored under the relation field name, as a Record
// for to-one relations or a []Record for to-many relations.
type Record map[string]any

// Field implements relmap.Fields.
func (r Record) Field(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// SetField implements relmap.Fields.
func (r Record) SetField(name string, v any) { r[name] = v }

// UnsetField implements relmap.Fields. The key is kept with a nil value so
// that the field reads as explicitly cleared.
func (r Record) UnsetField(name string) { r[name] = nil }

// Records returns the to-many relation stored under name.
func (r Record) Records(name string) []Record {
	rs, _ := r[name].([]Record)
	return rs
}

// Record returns the to-one relation stored under name.
func (r Record) Record(name string) Record {
	rec, _ := r[name].(Record)
	return rec
}
