package recovery

import (
	"strings"

	"taskpulse/internal/model"
)

// Classification is keyword-substring matching over free-text error
// messages from heterogeneous sources. Rules are checked in priority
// order, first match wins, case-insensitive.
type rule struct {
	failureType model.FailureType
	keywords    []string
}

var classificationRules = []rule{
	{model.FailureTimeout, []string{"timeout", "time limit", "deadline"}},
	{model.FailureNetwork, []string{"connection", "network", "socket", "dns"}},
	{model.FailureDatabase, []string{"database", "sql", "connection pool", "deadlock"}},
	{model.FailureValidation, []string{"validation", "invalid", "missing required"}},
	{model.FailureResource, []string{"memory", "disk space", "file not found", "permission"}},
}

// Classify assigns a failure category to an error message.
func Classify(errMsg string) model.FailureType {
	lowered := strings.ToLower(errMsg)
	for _, r := range classificationRules {
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				return r.failureType
			}
		}
	}
	return model.FailureUnknown
}
