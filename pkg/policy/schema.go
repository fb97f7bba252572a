package policy

// policySchema validates policy definition documents before decoding.
const policySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["policies"],
  "properties": {
    "policies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "action_type", "allowed_environments", "key_fields"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "action_type": {"type": "string", "minLength": 1},
          "allowed_environments": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "max_runs_per_window": {"type": "integer", "minimum": 1},
          "window_seconds": {"type": "integer", "minimum": 1},
          "cooldown_seconds": {"type": "integer", "minimum": 1},
          "requires_approval": {"type": "boolean"},
          "key_fields": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
