// Package mapping holds the expected retail schema and the user-declared
// correspondence from expected names to source names.
package mapping

// ExpectedTable is one logical table the analytics layer reads after export.
type ExpectedTable struct {
	Name    string
	Columns []string
}

// Unmapped is the sentinel source name for an expected table or column with
// no source counterpart. An empty name means the same thing.
const Unmapped = "None"

var expectedSchema = []ExpectedTable{
	{"Transactions", []string{"id_transaction", "date_heure", "id_client", "id_produit", "id_magasin", "id_employé", "quantité", "montant_total"}},
	{"Client", []string{"id_client", "ville", "Tier_fidelité"}},
	{"Produit", []string{"id_produit", "nom_produit", "catégorie", "prix_achat", "prix_vente"}},
	{"Magasin", []string{"id_magasin", "id_localisation"}},
	{"Stock", []string{"id_produit", "id_magasin", "quantité", "seuil_minimum"}},
	{"Employé", []string{"id_employé", "id_magasin", "poste"}},
	{"Localisation", []string{"id_localisation", "ville"}},
}

// ExpectedSchema returns the expected tables in their canonical order.
// The returned slice is a copy.
func ExpectedSchema() []ExpectedTable {
	out := make([]ExpectedTable, len(expectedSchema))
	for i, t := range expectedSchema {
		out[i] = ExpectedTable{Name: t.Name, Columns: append([]string(nil), t.Columns...)}
	}
	return out
}

// ExpectedTableNames returns the expected table names in canonical order.
func ExpectedTableNames() []string {
	names := make([]string, len(expectedSchema))
	for i, t := range expectedSchema {
		names[i] = t.Name
	}
	return names
}

// Expected looks up an expected table by exact name.
func Expected(name string) (ExpectedTable, bool) {
	for _, t := range expectedSchema {
		if t.Name == name {
			return ExpectedTable{Name: t.Name, Columns: append([]string(nil), t.Columns...)}, true
		}
	}
	return ExpectedTable{}, false
}

// HasColumn reports whether col belongs to the expected table.
func (t ExpectedTable) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// IsUnmapped reports whether a source name means "no source counterpart".
func IsUnmapped(name string) bool {
	return name == "" || name == Unmapped
}
