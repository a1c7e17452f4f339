package convert

import "fmt"

// Pair couples a primary metadata file with its passthrough companion.
// Passthrough is empty when the lineage carried no passthrough data.
type Pair struct {
	Primary     string
	Passthrough string
}

// PairFiles zips sorted primary and passthrough file lists positionally.
// A single passthrough file is broadcast across every primary; no
// passthrough at all is allowed. Any other count mismatch would silently
// corrupt records, so it is a structural error.
func PairFiles(primary, passthrough []string) ([]Pair, error) {
	switch {
	case len(passthrough) == 0:
		pairs := make([]Pair, len(primary))
		for i, p := range primary {
			pairs[i] = Pair{Primary: p}
		}
		return pairs, nil

	case len(passthrough) == len(primary):
		pairs := make([]Pair, len(primary))
		for i, p := range primary {
			pairs[i] = Pair{Primary: p, Passthrough: passthrough[i]}
		}
		return pairs, nil

	case len(passthrough) == 1:
		pairs := make([]Pair, len(primary))
		for i, p := range primary {
			pairs[i] = Pair{Primary: p, Passthrough: passthrough[0]}
		}
		return pairs, nil

	default:
		return nil, fmt.Errorf(
			"number of passthrough files and primary files is incompatible:\nprimary: %v\npassthrough: %v",
			primary, passthrough)
	}
}
