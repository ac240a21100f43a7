package extract

import (
	"bytes"
	"encoding/json"
)

// extractJSON pretty-prints the payload so structure extraction and chunking
// see one key per line instead of a single minified token.
func extractJSON(body []byte) Extracted {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return Extracted{Engine: EngineJSON, Text: string(body)}
	}
	return Extracted{Engine: EngineJSON, Text: buf.String()}
}
