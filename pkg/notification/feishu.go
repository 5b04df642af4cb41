package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"taskpulse/internal/model"
	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"
)

// FeishuNotifier sends alerts to Feishu (Lark)
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a new Feishu notifier
func NewFeishuNotifier(cfg *config.NotificationConfig) *FeishuNotifier {
	// Priority: config file > environment variable
	webhookURL := cfg.FeishuWebhookURL
	if webhookURL == "" {
		webhookURL = os.Getenv("FEISHU_WEBHOOK_URL")
	}

	if webhookURL == "" {
		logger.WarnCtx(context.Background(), "Feishu webhook URL not configured (check config file or FEISHU_WEBHOOK_URL env), Feishu notifications will be disabled")
	}

	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyTaskExhausted sends an alert when a task has run out of retries.
// Errors are logged, never returned into the failure path.
func (f *FeishuNotifier) NotifyTaskExhausted(ctx context.Context, record *model.FailureRecord) {
	if err := f.SendTaskFailureAlert(ctx, record); err != nil {
		logger.ErrorCtx(ctx, "failed to send failure alert for task %s: %v", record.TaskID, err)
	}
}

// SendTaskFailureAlert sends a task failure alert card to Feishu
func (f *FeishuNotifier) SendTaskFailureAlert(ctx context.Context, record *model.FailureRecord) error {
	if f.webhookURL == "" {
		logger.DebugCtx(ctx, "Feishu webhook URL not configured, skipping notification")
		return nil
	}

	message := f.buildTaskFailureMessage(record)

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "Feishu failure alert sent for task: %s", record.TaskID)
	return nil
}

// buildTaskFailureMessage builds a Feishu message card for a failed task
func (f *FeishuNotifier) buildTaskFailureMessage(record *model.FailureRecord) map[string]interface{} {
	errorMessage := record.ErrorMessage
	if len(errorMessage) > 500 {
		errorMessage = errorMessage[:500] + "..."
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": "red",
				"title": map[string]interface{}{
					"content": "Task Failed Permanently",
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Task**: %s\nAll retries exhausted, task will not run again", record.TaskName),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "div",
					"fields": []interface{}{
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Task ID**\n%s", record.TaskID),
								"tag":     "lark_md",
							},
						},
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Failure Type**\n%s", record.FailureType),
								"tag":     "lark_md",
							},
						},
					},
				},
				map[string]interface{}{
					"tag": "div",
					"fields": []interface{}{
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Retries**\n%d/%d", record.RetryCount, record.MaxRetries),
								"tag":     "lark_md",
							},
						},
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Worker**\n%s", record.Worker),
								"tag":     "lark_md",
							},
						},
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Error**: %s", errorMessage),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Failed At**: %s", record.FailedAt.Format("2006-01-02 15:04:05")),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "note",
					"elements": []interface{}{
						map[string]interface{}{
							"content": record.FailureType.Advice(),
							"tag":     "plain_text",
						},
					},
				},
			},
		},
	}
}
