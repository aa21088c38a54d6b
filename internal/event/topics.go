package event

// Topics published by the pipeline.
const (
	// TopicCycleCompleted carries an analytics.AlertCycleResult.
	TopicCycleCompleted = "turbinewatch.cycle.completed"

	// TopicFaultDetected carries an analytics.FaultRecord for every fault in
	// a cycle, escalated or suppressed.
	TopicFaultDetected = "turbinewatch.fault.detected"

	// TopicEscalationFinished carries an analytics.Escalation once it reached
	// Sent or Abandoned.
	TopicEscalationFinished = "turbinewatch.escalation.finished"
)

// Source names the component that emitted an event.
const SourcePipeline = "pipeline"
