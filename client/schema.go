package client

import "encoding/json"

// ResponseSchema is the structured output schema sent to Gemini.
var ResponseSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "name": {"type": "STRING"},
    "modules": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "id": {"type": "STRING"},
          "name": {"type": "STRING"},
          "type": {"type": "STRING", "enum": ["crud", "auth", "custom"]},
          "description": {"type": "STRING"},
          "fields": {
            "type": "ARRAY",
            "items": {
              "type": "OBJECT",
              "properties": {
                "name": {"type": "STRING"},
                "label": {"type": "STRING"},
                "type": {"type": "STRING", "enum": ["string", "number", "boolean", "date", "select"]},
                "required": {"type": "BOOLEAN"}
              },
              "required": ["name", "label", "type", "required"]
            }
          }
        },
        "required": ["id", "name", "type", "description"]
      }
    },
    "files": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "name": {"type": "STRING"},
          "content": {"type": "STRING"},
          "language": {"type": "STRING"},
          "path": {"type": "STRING"}
        },
        "required": ["name", "content", "language", "path"]
      }
    },
    "readme": {"type": "STRING"}
  },
  "required": ["name", "modules", "files", "readme"]
}`)
