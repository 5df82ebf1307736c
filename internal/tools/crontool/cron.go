// Package crontool exposes the cron scheduler's job and reminder operations
// as model-facing tools.
package crontool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexuscore/agentrt/internal/cron"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// RegisterAll registers the full cron_*/reminder_* tool family against reg,
// backed by sched.
func RegisterAll(reg *tools.Registry, sched *cron.Scheduler) error {
	for _, t := range []tools.Tool{
		&CreateTool{sched},
		&ListTool{sched},
		&UpdateTool{sched},
		&RemoveTool{sched},
		&RunTool{sched},
		&RunsTool{sched},
		&ReminderSetTool{sched},
		&ReminderListTool{sched},
		&ReminderCancelTool{sched},
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func errResult(message string) *models.ToolResult {
	return &models.ToolResult{Content: message, IsError: true}
}

func okJSON(v any) *models.ToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("marshal result: %v", err))
	}
	return &models.ToolResult{Content: string(payload)}
}

// scheduleInput is the JSON-sourced coercion shape for a cron job's
// schedule: exactly one of at/every_ms/expr is expected, selected by kind.
type scheduleInput struct {
	Kind    string `json:"kind"`
	At      string `json:"at,omitempty"`
	EveryMs int64  `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
	Tz      string `json:"tz,omitempty"`
}

// normalizeSchedule coerces the JSON-sourced scheduleInput into a
// cron.Schedule, the way job definitions arriving over a tool call need
// parsing rather than the typed constructors internal code uses.
func normalizeSchedule(in scheduleInput) (cron.Schedule, error) {
	switch cron.Kind(in.Kind) {
	case cron.KindAt:
		at, err := time.Parse(time.RFC3339, in.At)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("crontool: invalid at timestamp: %w", err)
		}
		return cron.At(at), nil
	case cron.KindEvery:
		if in.EveryMs <= 0 {
			return cron.Schedule{}, fmt.Errorf("crontool: every_ms must be positive")
		}
		return cron.Every(time.Duration(in.EveryMs)*time.Millisecond, time.Time{}), nil
	case cron.KindCron:
		return cron.Cron(in.Expr, in.Tz), nil
	default:
		return cron.Schedule{}, fmt.Errorf("crontool: unknown schedule kind %q", in.Kind)
	}
}

var scheduleSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"kind":     map[string]any{"type": "string", "enum": []string{"at", "every", "cron"}},
		"at":       map[string]any{"type": "string", "description": "RFC3339 timestamp, required for kind=at"},
		"every_ms": map[string]any{"type": "integer", "description": "interval in milliseconds, required for kind=every"},
		"expr":     map[string]any{"type": "string", "description": "cron expression, required for kind=cron"},
		"tz":       map[string]any{"type": "string"},
	},
	"required": []string{"kind"},
}

var payloadSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"channel": map[string]any{"type": "string"},
		"chat_id": map[string]any{"type": "string"},
		"text":    map[string]any{"type": "string"},
	},
	"required": []string{"channel", "chat_id", "text"},
}

// CreateTool implements cron_create.
type CreateTool struct{ sched *cron.Scheduler }

func (t *CreateTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "cron_create",
		Description: "Create a recurring or one-shot scheduled job.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":     map[string]any{"type": "string"},
				"schedule": scheduleSchema,
				"payload":  payloadSchema,
			},
			"required": []string{"name", "schedule", "payload"},
		},
	}
}

func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Name     string        `json:"name"`
		Schedule scheduleInput `json:"schedule"`
		Payload  cron.Payload  `json:"payload"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	schedule, err := normalizeSchedule(input.Schedule)
	if err != nil {
		return errResult(err.Error()), nil
	}
	job, err := t.sched.CreateJob(input.Name, schedule, input.Payload)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(job), nil
}

// ListTool implements cron_list.
type ListTool struct{ sched *cron.Scheduler }

func (t *ListTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "cron_list",
		Description: "List every registered cron job.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return okJSON(map[string]any{"jobs": t.sched.ListJobs()}), nil
}

// UpdateTool implements cron_update.
type UpdateTool struct{ sched *cron.Scheduler }

func (t *UpdateTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "cron_update",
		Description: "Update an existing job's schedule, payload, or enabled state.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":       map[string]any{"type": "string"},
				"enabled":  map[string]any{"type": "boolean"},
				"schedule": scheduleSchema,
				"payload":  payloadSchema,
			},
			"required": []string{"id"},
		},
	}
}

func (t *UpdateTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID       string         `json:"id"`
		Enabled  *bool          `json:"enabled"`
		Schedule *scheduleInput `json:"schedule"`
		Payload  *cron.Payload  `json:"payload"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	var normalizeErr error
	job, err := t.sched.UpdateJob(input.ID, func(j *cron.Job) {
		if input.Enabled != nil {
			j.Enabled = *input.Enabled
		}
		if input.Payload != nil {
			j.Payload = *input.Payload
		}
		if input.Schedule != nil {
			schedule, err := normalizeSchedule(*input.Schedule)
			if err != nil {
				normalizeErr = err
				return
			}
			j.Schedule = schedule
		}
	})
	if normalizeErr != nil {
		return errResult(normalizeErr.Error()), nil
	}
	if err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(job), nil
}

// RemoveTool implements cron_remove.
type RemoveTool struct{ sched *cron.Scheduler }

func (t *RemoveTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "cron_remove",
		Description: "Delete a cron job by id.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
}

func (t *RemoveTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return okJSON(map[string]bool{"removed": t.sched.RemoveJob(input.ID)}), nil
}

// RunTool implements cron_run: fire a job immediately, out of band.
type RunTool struct{ sched *cron.Scheduler }

func (t *RunTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "cron_run",
		Description: "Fire a cron job immediately, regardless of its schedule.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
}

func (t *RunTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if err := t.sched.RunJob(ctx, input.ID); err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(map[string]bool{"ran": true}), nil
}

// RunsTool implements cron_runs: execution history for a job.
type RunsTool struct{ sched *cron.Scheduler }

func (t *RunsTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "cron_runs",
		Description: "List recent execution history for a cron job.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":    map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []string{"id"},
		},
	}
}

func (t *RunsTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID    string `json:"id"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return okJSON(map[string]any{"runs": t.sched.GetJobRuns(input.ID, input.Limit)}), nil
}

// ReminderSetTool implements reminder_set.
type ReminderSetTool struct{ sched *cron.Scheduler }

func (t *ReminderSetTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "reminder_set",
		Description: "Set a one-shot reminder firing at a future time.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"channel": map[string]any{"type": "string"},
				"chat_id": map[string]any{"type": "string"},
				"text":    map[string]any{"type": "string"},
				"fire_at": map[string]any{"type": "string", "description": "RFC3339 timestamp"},
			},
			"required": []string{"channel", "chat_id", "text", "fire_at"},
		},
	}
}

func (t *ReminderSetTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Channel string `json:"channel"`
		ChatID  string `json:"chat_id"`
		Text    string `json:"text"`
		FireAt  string `json:"fire_at"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	fireAt, err := time.Parse(time.RFC3339, input.FireAt)
	if err != nil {
		return errResult(fmt.Sprintf("invalid fire_at: %v", err)), nil
	}
	reminder, err := t.sched.SetReminder(input.Channel, input.ChatID, input.Text, fireAt)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(reminder), nil
}

// ReminderListTool implements reminder_list.
type ReminderListTool struct{ sched *cron.Scheduler }

func (t *ReminderListTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "reminder_list",
		Description: "List every tracked reminder, fired or not.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *ReminderListTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return okJSON(map[string]any{"reminders": t.sched.ListReminders()}), nil
}

// ReminderCancelTool implements reminder_cancel.
type ReminderCancelTool struct{ sched *cron.Scheduler }

func (t *ReminderCancelTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "reminder_cancel",
		Description: "Cancel a pending reminder by id.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
}

func (t *ReminderCancelTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return okJSON(map[string]bool{"cancelled": t.sched.CancelReminder(input.ID)}), nil
}
