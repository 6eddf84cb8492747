package capacity

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
)

var trailingNumber = regexp.MustCompile(`-(\d+)$`)

// BaseName strips a trailing -<digits> suffix from a backend name, so
// "images-repo-3" and "images-repo" both yield "images-repo".
func BaseName(name string) string {
	return trailingNumber.ReplaceAllString(name, "")
}

// NextName derives the next backend name for base by scanning the
// registry for names matching "<base>-<N>" and picking max(N)+1,
// defaulting to 1 when nothing matches. Monotonic and collision-free
// under a single writer; concurrent provisioners can still derive the
// same name.
func (r *Registry) NextName(ctx context.Context, base string) (string, error) {
	names, err := r.NamesLike(ctx, base+"-%")
	if err != nil {
		// Best-effort scan: fall back to -1 rather than failing
		// provisioning outright.
		log.Warn().Err(err).Str("base", base).Msg("failed to scan existing backend names, starting at 1")
		return fmt.Sprintf("%s-1", base), nil
	}

	max := 0
	for _, name := range names {
		m := trailingNumber.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}

	return fmt.Sprintf("%s-%d", base, max+1), nil
}
