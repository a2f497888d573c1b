// Package ordset parses the -n conversation-ordinal selector
// ("n,m-p,...") into a set membership test.
package ordset

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parse turns "3,5-8,12" into {3,5,6,7,8,12}. An empty string returns a
// nil map, meaning "no filter" to the caller.
func Parse(spec string) (map[int]bool, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	set := make(map[int]bool)
	for _, term := range strings.Split(spec, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if idx := strings.IndexByte(term, '-'); idx > 0 {
			lo, err := strconv.Atoi(term[:idx])
			if err != nil {
				return nil, errors.Wrapf(err, "bad ordinal range %q", term)
			}
			hi, err := strconv.Atoi(term[idx+1:])
			if err != nil {
				return nil, errors.Wrapf(err, "bad ordinal range %q", term)
			}
			for i := lo; i <= hi; i++ {
				set[i] = true
			}
			continue
		}
		n, err := strconv.Atoi(term)
		if err != nil {
			return nil, errors.Wrapf(err, "bad ordinal %q", term)
		}
		set[n] = true
	}
	return set, nil
}
