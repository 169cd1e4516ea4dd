package repository

import (
	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/permission"
)

// intersectFields combines the permission field set with the caller's
// requested projection. A nil permission set means unrestricted, so the
// caller's request stands; with no requested fields the permission set
// stands. Otherwise the result is the intersection, in the caller's
// requested order.
func intersectFields(permitted, requested []string) []string {
	if permitted == nil {
		return requested
	}
	if len(requested) == 0 {
		return permitted
	}
	allowed := make(map[string]bool, len(permitted))
	for _, f := range permitted {
		allowed[f] = true
	}
	out := make([]string, 0, len(requested))
	for _, f := range requested {
		if allowed[f] || f == api.IDField {
			out = append(out, f)
		}
	}
	return out
}

// projectRecords strips every record down to the effective field set.
// The unified identifier always survives projection. A nil field set
// means no projection.
func projectRecords(records []api.Record, fields []string) []api.Record {
	if fields == nil {
		return records
	}
	keep := make(map[string]bool, len(fields)+1)
	for _, f := range fields {
		keep[f] = true
	}
	keep[api.IDField] = true

	out := make([]api.Record, len(records))
	for i, rec := range records {
		projected := make(api.Record, len(fields)+1)
		for k, v := range rec {
			if keep[k] {
				projected[k] = v
			}
		}
		out[i] = projected
	}
	return out
}

// stripForWrite removes data keys the caller may not write. Stripping
// is silent: a write carrying forbidden keys succeeds with those keys
// ignored. The identifier passes through; drivers treat it as the
// record key, never as a writable field.
func stripForWrite(data api.Record, res *permission.Resolution) api.Record {
	out := make(api.Record, len(data))
	for k, v := range data {
		if k == api.IDField || res.FieldWritable(k) {
			out[k] = v
		}
	}
	return out
}
