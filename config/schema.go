package config

// pipelineSchema is the JSON Schema (draft-07) every pipeline
// configuration document must satisfy.
const pipelineSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "pipeline",
  "type": "object",
  "required": ["sources"],
  "additionalProperties": false,
  "properties": {
    "sources": {
      "type": "array",
      "minItems": 1,
      "items": {
        "oneOf": [
          {"type": "string", "minLength": 1},
          {
            "type": "object",
            "properties": {
              "input": {"type": "string", "minLength": 1},
              "plugin": {"type": "string", "minLength": 1},
              "class": {"type": "string", "minLength": 1},
              "params": {"type": "object"},
              "log-level": {"type": "string"}
            },
            "additionalProperties": false
          }
        ]
      }
    },
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["plugin", "class"],
        "properties": {
          "plugin": {"type": "string", "minLength": 1},
          "class": {"type": "string", "minLength": 1},
          "params": {"type": "object"},
          "log-level": {"type": "string"}
        },
        "additionalProperties": false
      }
    },
    "stream-intersection": {"type": "boolean"},
    "begin-ns": {"type": "integer"},
    "end-ns": {"type": "integer"}
  }
}`
