package match

// AliasProvider maps a normalized vendor string to its canonical form before
// the vendor term is scored ("sbux" and "starbucks" compare equal). Injected
// so tests and callers can substitute alias sets.
type AliasProvider interface {
	Canonical(vendor string) string
}

// NoAliases is the identity provider.
type NoAliases struct{}

func (NoAliases) Canonical(vendor string) string { return vendor }

// TableAliases resolves against a fixed alias -> canonical map.
type TableAliases struct {
	table map[string]string
}

func NewTableAliases(table map[string]string) *TableAliases {
	return &TableAliases{table: table}
}

func (t *TableAliases) Canonical(vendor string) string {
	if canonical, ok := t.table[vendor]; ok {
		return canonical
	}
	return vendor
}
