package engine

const (
	operationProcess = "process"
	operationSettle  = "settle"
	operationCancel  = "cancel"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	subjectAccount    = "account"
	subjectEntry      = "entry"
	subjectLimits     = "limits"
	subjectFees       = "fees"
	subjectRisk       = "risk"
	subjectCommit     = "commit"
	subjectSettlement = "settlement"

	codeEligibility = "eligibility"
	codeLookup      = "lookup"
	codeMetadata    = "metadata"
	codeWrite       = "write"
	codeConflict    = "conflict"
	codeReplay      = "replay"
)
