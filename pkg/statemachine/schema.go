package statemachine

// specSchema validates state machine specification documents before they are
// decoded. Structural violations are startup-fatal.
const specSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["states", "transitions"],
  "properties": {
    "states": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "category"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "category": {
            "type": "string",
            "enum": ["initial", "ready", "in-progress", "verification", "merge-pending", "terminal", "special-hold"]
          },
          "terminal": {"type": "boolean"},
          "predecessors": {"type": "array", "items": {"type": "string"}},
          "successors": {"type": "array", "items": {"type": "string"}},
          "entry_conditions": {"type": "array", "items": {"type": "string"}},
          "exit_conditions": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    },
    "transitions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to", "kind"],
        "properties": {
          "from": {"type": "string", "minLength": 1},
          "to": {"type": "string", "minLength": 1},
          "kind": {
            "type": "string",
            "enum": ["forward", "backward", "pause", "resume", "terminate"]
          },
          "preconditions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["tag"],
              "properties": {
                "tag": {"type": "string", "minLength": 1},
                "required": {"type": "boolean"}
              },
              "additionalProperties": false
            }
          },
          "side_effects": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["tag"],
              "properties": {
                "tag": {"type": "string", "minLength": 1},
                "params": {"type": "object"}
              },
              "additionalProperties": false
            }
          },
          "automatic": {"type": "boolean"},
          "auto_triggers": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    },
    "mappings": {
      "type": "object",
      "properties": {
        "status_field": {"type": "object", "additionalProperties": {"type": "string"}},
        "label": {"type": "object", "additionalProperties": {"type": "string"}},
        "pr_status": {"type": "object", "additionalProperties": {"type": "string"}},
        "done_signals": {
          "type": "object",
          "additionalProperties": {"type": "array", "items": {"type": "string"}}
        }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`
