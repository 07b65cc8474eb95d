package services

// Fixed user-facing messages. Callers show them verbatim.
const (
	MessageNotPermitted = "You don't have permission to do this"
	MessagePlanLimit    = "You have reached the interview limit for your plan"
	MessageRateLimited  = "Too many interviews started recently. Please try again later"
)
