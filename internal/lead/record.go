// Package lead holds the lead record exchanged with the agent, the boundary
// parser for inbound form requests, and the lead capture form model.
package lead

import (
	"maps"
	"sort"
	"strings"
)

// Canonical field names.
const (
	FieldName          = "name"
	FieldInquiry       = "inquiry"
	FieldContactDetail = "contactDetail"
	FieldEmail         = "email"
	FieldPhone         = "phone"
)

// fieldAliases maps the spellings seen on the wire to canonical names.
var fieldAliases = map[string]string{
	"contact_detail": FieldContactDetail,
	"contactdetail":  FieldContactDetail,
	"contact":        FieldContactDetail,
	"visitor_name":   FieldName,
	"full_name":      FieldName,
	"visitor_email":  FieldEmail,
	"visitor_phone":  FieldPhone,
	"phone_number":   FieldPhone,
}

// Record is a lead as a mapping of field name to value. Contact info is
// either the combined contactDetail field or split email/phone fields.
type Record map[string]string

// Layout describes which contact fields a form shows.
type Layout string

const (
	LayoutCombined Layout = "combined"
	LayoutSplit    Layout = "split"
)

// Fields returns the ordered field names shown for the layout.
func (l Layout) Fields() []string {
	if l == LayoutSplit {
		return []string{FieldName, FieldInquiry, FieldEmail, FieldPhone}
	}
	return []string{FieldName, FieldInquiry, FieldContactDetail}
}

// Get returns the value of a field or the empty string.
func (r Record) Get(field string) string {
	if r == nil {
		return ""
	}
	return r[field]
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

func (r Record) Equal(other Record) bool {
	return maps.Equal(r, other)
}

// Layout picks split contact fields when the record carries email or phone
// but no combined contact detail.
func (r Record) Layout() Layout {
	if _, ok := r[FieldContactDetail]; ok {
		return LayoutCombined
	}
	if _, ok := r[FieldEmail]; ok {
		return LayoutSplit
	}
	if _, ok := r[FieldPhone]; ok {
		return LayoutSplit
	}
	return LayoutCombined
}

// Keys returns field names in a stable order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize rewrites aliased field names to their canonical form. A
// canonical key wins over an alias carrying the same field.
func Normalize(in map[string]string) Record {
	out := make(Record, len(in))
	for k, v := range in {
		if canon, ok := canonicalName(k); ok {
			if _, exists := in[canon]; exists && canon != k {
				continue
			}
			out[canon] = v
			continue
		}
		out[k] = v
	}
	return out
}

func canonicalName(key string) (string, bool) {
	if canon, ok := fieldAliases[strings.ToLower(strings.TrimSpace(key))]; ok {
		return canon, true
	}
	return "", false
}
