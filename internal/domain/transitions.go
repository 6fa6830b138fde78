package domain

// Trigger identifies what caused a status transition attempt.
type Trigger string

const (
	TriggerDispatchAnalysis Trigger = "dispatch_analysis"
	TriggerEngineDecision   Trigger = "engine_decision"
	TriggerEngineFailure    Trigger = "engine_failure"
	TriggerAdminConfirm     Trigger = "admin_confirm"
	TriggerAdminReject      Trigger = "admin_reject"
	TriggerAdminRetry       Trigger = "admin_retry"
	TriggerCompleteManual   Trigger = "complete_manual"
)

// transitionSources lists the statuses each trigger may fire from. The
// destination is a function of the trigger (and, for engine decisions, the
// confidence floor) rather than of the source.
var transitionSources = map[Trigger][]TicketStatus{
	TriggerDispatchAnalysis: {TicketStatusOpen, TicketStatusWaitingConfirm, TicketStatusManualRequired},
	TriggerEngineDecision:   {TicketStatusAnalyzing},
	TriggerEngineFailure:    {TicketStatusAnalyzing},
	TriggerAdminConfirm:     {TicketStatusWaitingConfirm},
	TriggerAdminReject:      {TicketStatusWaitingConfirm},
	TriggerAdminRetry:       {TicketStatusWaitingConfirm, TicketStatusManualRequired},
	TriggerCompleteManual:   {TicketStatusManualRequired},
}

// CanFire reports whether trigger is legal from the given status.
func CanFire(trigger Trigger, from TicketStatus) bool {
	for _, s := range transitionSources[trigger] {
		if s == from {
			return true
		}
	}
	return false
}

// AllowedSources returns the statuses a trigger is legal from, for error
// reporting.
func AllowedSources(trigger Trigger) []TicketStatus {
	return append([]TicketStatus(nil), transitionSources[trigger]...)
}
