package timeline

import (
	"fmt"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// parsedRun is one node's execution result, lifted out of the engine's
// data.main[0][0].json envelope.
type parsedRun struct {
	status          string
	executionTimeMs int64
	errorMessage    *string
	output          models.JSONMap
}

// parseNodeRun decodes one node's entry of the raw run-data tree. The entry
// is a list of runs; the last run wins. Shape violations surface as
// MalformedExecutionData so the caller can skip the step.
func parseNodeRun(entry interface{}) (*parsedRun, error) {
	runs, ok := entry.([]interface{})
	if !ok || len(runs) == 0 {
		return nil, fmt.Errorf("%w: node entry is not a run list", models.ErrMalformedExecution)
	}

	run, ok := runs[len(runs)-1].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: run entry is not an object", models.ErrMalformedExecution)
	}

	parsed := &parsedRun{status: string(models.ExecutionSuccess)}

	if ms, ok := run["executionTime"].(float64); ok {
		parsed.executionTimeMs = int64(ms)
	}

	if rawErr, ok := run["error"]; ok && rawErr != nil {
		message := runErrorMessage(rawErr)
		parsed.errorMessage = &message
		parsed.status = string(models.ExecutionError)
	}

	parsed.output = runOutput(run)
	return parsed, nil
}

// runOutput digs data.main[0][0].json out of a run entry. A node that
// executed without emitting items yields nil output, which is valid.
func runOutput(run map[string]interface{}) models.JSONMap {
	data, ok := run["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	main, ok := data["main"].([]interface{})
	if !ok || len(main) == 0 {
		return nil
	}
	branch, ok := main[0].([]interface{})
	if !ok || len(branch) == 0 {
		return nil
	}
	item, ok := branch[0].(map[string]interface{})
	if !ok {
		return nil
	}
	payload, ok := item["json"].(map[string]interface{})
	if !ok {
		return nil
	}
	return models.JSONMap(payload)
}

func runErrorMessage(rawErr interface{}) string {
	switch e := rawErr.(type) {
	case string:
		return e
	case map[string]interface{}:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
		return fmt.Sprintf("%v", e)
	default:
		return fmt.Sprintf("%v", e)
	}
}
