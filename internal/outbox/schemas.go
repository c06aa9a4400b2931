package outbox

const observationRecordedSchema = `{
  "type": "object",
  "title": "ObservationRecorded",
  "properties": {
    "observation_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"},
    "energy": {"type": "integer", "minimum": 1, "maximum": 8},
    "focus": {"type": "integer", "minimum": 1, "maximum": 8},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["observation_id", "tenant_id", "user_id", "recorded_at", "energy", "focus", "occurred_at", "version"],
  "additionalProperties": false
}`

const observationAmendedSchema = `{
  "type": "object",
  "title": "ObservationAmended",
  "properties": {
    "observation_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"},
    "energy": {"type": "integer", "minimum": 1, "maximum": 8},
    "focus": {"type": "integer", "minimum": 1, "maximum": 8},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["observation_id", "tenant_id", "user_id", "recorded_at", "energy", "focus", "occurred_at", "version"],
  "additionalProperties": false
}`

const observationRemovedSchema = `{
  "type": "object",
  "title": "ObservationRemoved",
  "properties": {
    "observation_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["observation_id", "tenant_id", "user_id", "recorded_at", "occurred_at", "version"],
  "additionalProperties": false
}`

const observationStateChangedSchema = `{
  "type": "object",
  "title": "ObservationStateChanged",
  "properties": {
    "observation_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "state": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "reason": {"type": "string"}
  },
  "required": ["observation_id", "tenant_id", "user_id", "state", "occurred_at"],
  "additionalProperties": false
}`
