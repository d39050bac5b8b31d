package watchlist

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generateID returns "evt_<unix-millis>_<random>".
func generateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("evt_%d_%s", now.UnixMilli(), suffix)
}
