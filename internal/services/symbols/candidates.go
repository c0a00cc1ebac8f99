package symbols

import "strings"

// Suffixes brokers append to canonical names, in probing order.
var Suffixes = []string{"", "m", "c", "b", "z", ".m", ".c", ".s", ".std", ".pro", ".r", "_i", ".p", ".ecn", "#", "ft", "ft.r", ".t"}

// Prefixes brokers prepend to canonical names.
var Prefixes = []string{"m", "M", "i", "pro.", ".", "#", "b"}

// Futures month codes and the year digits probed for each.
var (
	MonthCodes = []string{"F", "G", "H", "J", "K", "M", "N", "Q", "U", "V", "X", "Z"}
	YearCodes  = []string{"25", "26", "27", "5", "6", "7"}
)

// synonymGroups lists names that denote the same instrument across brokers.
var synonymGroups = [][]string{
	// metals
	{"XAUUSD", "GOLD", "GC", "MGC"},
	{"XAGUSD", "SILVER", "SI", "SIL"},
	// indices
	{"US30", "DJ30", "WS30", "DOW", "YM", "MYM"},
	{"NAS100", "US100", "USTEC", "NDX", "NQ", "MNQ"},
	{"SPX500", "US500", "SP500", "SPX", "ES", "MES"},
	// oils
	{"USOIL", "WTI", "XTIUSD", "CRUDE", "CL", "MCL"},
	{"UKOIL", "BRENT", "XBRUSD", "BRN"},
	// DAX
	{"GER40", "GER30", "DE40", "DE30", "DAX", "FDAX"},
	// BTC
	{"BTCUSD", "BITCOIN", "XBTUSD", "BTC", "MBT"},
}

var synonyms = buildSynonyms(synonymGroups)

func buildSynonyms(groups [][]string) map[string][]string {
	out := make(map[string][]string)
	for _, g := range groups {
		for _, name := range g {
			others := make([]string, 0, len(g)-1)
			for _, o := range g {
				if o != name {
					others = append(others, o)
				}
			}
			out[name] = others
		}
	}
	return out
}

// Synonyms returns the other names of the instrument, or nil.
func Synonyms(base string) []string {
	return synonyms[strings.ToUpper(base)]
}

// RollCandidates builds ROOT+month+year contract names.
func RollCandidates(root string) []string {
	if root == "" {
		return nil
	}
	root = strings.ToUpper(root)
	out := make([]string, 0, len(MonthCodes)*len(YearCodes))
	for _, m := range MonthCodes {
		for _, y := range YearCodes {
			out = append(out, root+m+y)
		}
	}
	return out
}

// BaseCandidates returns raw plus every form of raw with a known suffix
// or prefix stripped, in discovery order and without duplicates.
func BaseCandidates(raw string) []string {
	seen := map[string]bool{raw: true}
	out := []string{raw}
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, sfx := range Suffixes {
		if sfx != "" && len(raw) > len(sfx) && strings.HasSuffix(raw, sfx) {
			add(strings.TrimSuffix(raw, sfx))
		}
	}
	for _, pfx := range Prefixes {
		if len(raw) > len(pfx) && strings.HasPrefix(raw, pfx) {
			add(strings.TrimPrefix(raw, pfx))
		}
	}
	return out
}

func shortest(names []string) string {
	best := ""
	for _, n := range names {
		if best == "" || len(n) < len(best) {
			best = n
		}
	}
	return best
}
