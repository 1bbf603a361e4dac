package mapping

import (
	"sort"

	"github.com/johndauphine/retail-etl/internal/util"
)

// tableAliases are extra source spellings tried after the expected name itself.
var tableAliases = map[string][]string{
	"Transactions": {"transaction", "sales", "ventes"},
	"Client":       {"clients", "customer", "customers"},
	"Produit":      {"produits", "product", "products"},
	"Magasin":      {"magasins", "store", "stores"},
	"Stock":        {"stocks", "inventory"},
	"Employé":      {"employes", "employee", "employees"},
	"Localisation": {"localisations", "location", "locations"},
}

// Suggest builds a default mapping from a source introspection by matching
// names loosely: accents, case, spaces and hyphens are ignored. Expected items
// with no match are left unmapped. Each source table is suggested at most once.
func Suggest(introspection map[string][]string) *Mapping {
	m := New()

	byNorm := make(map[string]string, len(introspection))
	for _, src := range sortedKeys(introspection) {
		n := util.NormalizeName(src)
		if _, taken := byNorm[n]; !taken {
			byNorm[n] = src
		}
	}

	used := make(map[string]bool)
	for _, et := range expectedSchema {
		src := Unmapped
		for _, cand := range append([]string{et.Name}, tableAliases[et.Name]...) {
			if s, ok := byNorm[util.NormalizeName(cand)]; ok && !used[s] {
				src = s
				break
			}
		}
		m.MapTable(et.Name, src)
		if src == Unmapped {
			continue
		}
		used[src] = true

		cols := columnIndex(introspection[src])
		for _, c := range et.Columns {
			if s, ok := cols[util.NormalizeName(c)]; ok {
				m.MapColumn(et.Name, c, s)
			} else {
				m.MapColumn(et.Name, c, Unmapped)
			}
		}
	}
	return m
}

func columnIndex(cols []string) map[string]string {
	idx := make(map[string]string, len(cols))
	for _, c := range cols {
		n := util.NormalizeName(c)
		if _, taken := idx[n]; !taken {
			idx[n] = c
		}
	}
	return idx
}

// UnmappedSourceTables lists introspected tables no expected table uses.
func (m *Mapping) UnmappedSourceTables(introspection map[string][]string) []string {
	used := make(map[string]bool)
	for _, src := range m.Tables {
		used[src] = true
	}
	var out []string
	for t := range introspection {
		if !used[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
