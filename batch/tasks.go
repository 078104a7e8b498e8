package batch

import (
	"fmt"
	"net/http"
	"strings"
)

// customIDPrefix starts every request's custom_id
const customIDPrefix = "task_req_"

// Task is one request line of a batch artifact
type Task struct {
	CustomID string   `json:"custom_id"`
	Method   string   `json:"method"`
	URL      string   `json:"url"`
	Body     TaskBody `json:"body"`
}

// TaskBody is the chat completion request carried by a Task
type TaskBody struct {
	Model          string                 `json:"model"`
	Messages       []Message              `json:"messages"`
	ResponseFormat map[string]interface{} `json:"response_format"`
}

// Message is a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CustomID builds the request id. The correlation key follows the last '-'.
func CustomID(owner string, index int, hashID string) string {
	return fmt.Sprintf("%s%s_%d-%s", customIDPrefix, owner, index, hashID)
}

// CorrelationKeyFromCustomID returns the correlation key carried by a custom_id
func CorrelationKeyFromCustomID(customID string) string {
	i := strings.LastIndex(customID, "-")
	if i < 0 {
		return ""
	}
	return customID[i+1:]
}

// RenderPrompt substitutes {owner}, {date} and {text}
func RenderPrompt(template, owner string, item RequestItem) string {
	return strings.NewReplacer(
		"{owner}", owner,
		"{date}", item.Date,
		"{text}", item.Text,
	).Replace(template)
}

// TaskBuilder turns request items into batch request lines
type TaskBuilder struct {
	model        string
	endpoint     string
	systemPrompt string
	userPrompt   string
	format       map[string]interface{}
}

// NewTaskBuilder creates a builder from the orchestrator configuration
func NewTaskBuilder(cfg Config) *TaskBuilder {
	return &TaskBuilder{
		model:        cfg.Model,
		endpoint:     cfg.Endpoint,
		systemPrompt: cfg.SystemPrompt,
		userPrompt:   cfg.UserPrompt,
		format:       ResponseFormat(),
	}
}

// Build creates the tasks for one sub-batch. offset is the position of the
// first item among all of the owner's items, so indices are stable across sub-batches.
func (b *TaskBuilder) Build(owner string, items []RequestItem, offset int) []Task {
	tasks := make([]Task, 0, len(items))
	for i, item := range items {
		tasks = append(tasks, Task{
			CustomID: CustomID(owner, offset+i, item.HashID),
			Method:   http.MethodPost,
			URL:      b.endpoint,
			Body: TaskBody{
				Model: b.model,
				Messages: []Message{
					{Role: "system", Content: RenderPrompt(b.systemPrompt, owner, item)},
					{Role: "user", Content: RenderPrompt(b.userPrompt, owner, item)},
				},
				ResponseFormat: b.format,
			},
		})
	}
	return tasks
}
