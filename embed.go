package recovery

import "embed"

// StrategiesFS holds the coping strategy catalog, one markdown file per strategy.
//
//go:embed content/strategies/*.md
var StrategiesFS embed.FS
