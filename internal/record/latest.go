package record

// Newer reports whether a outranks b as the current version of a key: the
// later record_created wins, and equal timestamps fall back to the greater
// hash so the order is total.
func Newer(a, b Meta) bool {
	if !a.RecordCreated.Equal(b.RecordCreated) {
		return a.RecordCreated.After(b.RecordCreated)
	}
	return a.Hash > b.Hash
}

// Latest keeps the top-ranked row per key. Keys appear in the order they are
// first seen in rows. It does not look at status; callers pass valid rows.
func Latest[T any](rows []T, key func(T) string, newer func(a, b T) bool) []T {
	best := make(map[string]int, len(rows))
	order := make([]string, 0, len(rows))
	for i, row := range rows {
		k := key(row)
		current, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if newer(row, rows[current]) {
			best[k] = i
		}
	}

	out := make([]T, 0, len(order))
	for _, k := range order {
		out = append(out, rows[best[k]])
	}
	return out
}

// LatestRows applies Latest with the natural key and Newer.
func LatestRows[T Versioned](rows []T) []T {
	return Latest(rows,
		func(row T) string { return row.Key() },
		func(a, b T) bool { return Newer(a.RowMeta(), b.RowMeta()) },
	)
}
