package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/pkg/schema"
)

// Storage tools write directly to the database instead of calling out.

// --- JSON Schemas ---

const sendNotificationInputSchema = `{
  "type": "object",
  "properties": {
    "user_ids": {"type": "array", "items": {"type": "string"}, "description": "List of user IDs"},
    "message": {"type": "string", "description": "Notification message"},
    "priority": {"type": "string", "enum": ["low", "medium", "high"], "default": "medium"}
  },
  "required": ["message"]
}`

const createEventInputSchema = `{
  "type": "object",
  "properties": {
    "matter_id": {"type": "string", "description": "Matter ID"},
    "title": {"type": "string", "description": "Event title"},
    "date": {"type": "string", "description": "Event date (YYYY-MM-DD)"},
    "is_deadline": {"type": "boolean", "default": false}
  },
  "required": ["matter_id", "title", "date"]
}`

// --- SendNotificationTool ---

// SendNotificationTool implements "send_notification": one notification row
// per recipient. Returns {"sent": N}.
type SendNotificationTool struct {
	store store.Store
}

func NewSendNotificationTool(s store.Store) *SendNotificationTool {
	return &SendNotificationTool{store: s}
}

func (t *SendNotificationTool) Name() string { return "send_notification" }

func (t *SendNotificationTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Send notification to users",
		InputSchema: json.RawMessage(sendNotificationInputSchema),
	}
}

func (t *SendNotificationTool) Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error) {
	userIDs := stringsParam(input.Params, "user_ids")
	message := stringParam(input.Params, "message", "")
	priority := stringParam(input.Params, "priority", "medium")

	for _, userID := range userIDs {
		n := &store.Notification{
			ID:       uuid.New().String(),
			UserID:   userID,
			Message:  message,
			Priority: priority,
		}
		if err := t.store.CreateNotification(ctx, n); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "store notification for %s", userID).WithCause(err)
		}
	}

	data, _ := json.Marshal(map[string]any{"sent": len(userIDs)})
	return &ToolOutput{Data: data}, nil
}

// --- CreateEventTool ---

// CreateEventTool implements "create_event": inserts a calendar event or
// deadline on a matter. Returns {"event_id": id}.
type CreateEventTool struct {
	store store.Store
}

func NewCreateEventTool(s store.Store) *CreateEventTool {
	return &CreateEventTool{store: s}
}

func (t *CreateEventTool) Name() string { return "create_event" }

func (t *CreateEventTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Create a calendar event or deadline",
		InputSchema: json.RawMessage(createEventInputSchema),
	}
}

func (t *CreateEventTool) Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error) {
	isDeadline := boolParam(input.Params, "is_deadline", false)
	eventType := "event"
	if isDeadline {
		eventType = "deadline"
	}

	event := &store.MatterEvent{
		ID:         uuid.New().String(),
		MatterID:   stringParam(input.Params, "matter_id", ""),
		Title:      stringParam(input.Params, "title", ""),
		EventDate:  stringParam(input.Params, "date", ""),
		EventType:  eventType,
		IsDeadline: isDeadline,
	}
	if err := t.store.CreateEvent(ctx, event); err != nil {
		return nil, schema.NewError(schema.ErrCodeToolExecution, "store event").WithCause(err)
	}

	data, _ := json.Marshal(map[string]any{"event_id": event.ID})
	return &ToolOutput{Data: data}, nil
}
