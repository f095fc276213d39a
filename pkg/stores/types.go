package stores

import (
	"time"

	"github.com/openfroyo/up/pkg/merge"
)

// Preference is one stored value.
type Preference struct {
	Domain    string      `json:"domain"`
	Key       string      `json:"key"`
	Value     merge.Value `json:"-"`
	UpdatedAt time.Time   `json:"updated_at"`
}
