// Package seed provides the embedded baseline catalog document served to
// visitors who arrive without a personalized link.
package seed

import _ "embed"

// DefaultCatalog is the unpersonalized baseline catalog in canonical document
// form. It is validated at server startup, not blindly trusted.
//
//go:embed default-catalog.json
var DefaultCatalog []byte
