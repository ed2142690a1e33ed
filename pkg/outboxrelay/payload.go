package outboxrelay

import (
	"encoding/json"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

func unmarshalPayload(raw []byte, dest *map[string]interface{}) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Validation("outbox payload is not a JSON object", err)
	}
	return nil
}
