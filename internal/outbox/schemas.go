package outbox

const resultUpdatedSchema = `{
  "type": "object",
  "title": "ResultUpdated",
  "properties": {
    "result_id": {"type": "string"},
    "week_id": {"type": "integer"},
    "participant_id": {"type": "integer"},
    "activity_id": {"type": "string"},
    "external_id": {"type": "integer"},
    "total_time_seconds": {"type": "integer"},
    "effort_count": {"type": "integer"},
    "pr_achieved": {"type": "boolean"},
    "occurred_at": {"type": "integer"}
  },
  "required": ["result_id", "week_id", "participant_id", "activity_id", "total_time_seconds", "occurred_at"],
  "additionalProperties": false
}`
