package core

import "stitchcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	SwapOutcome        = domain.SwapOutcome
	Base               = domain.Base
	Color              = domain.Color
	NeedleBinding      = domain.NeedleBinding
	SlotArray          = domain.SlotArray
	PreviewImage       = domain.PreviewImage
	DesignRecord       = domain.DesignRecord
	DesignSession      = domain.DesignSession
	CachedColor        = domain.CachedColor
	CacheEntry         = domain.CacheEntry
	SwapResult         = domain.SwapResult
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
)

// NeedleCount re-exports the machine's slot count for adapter convenience.
const NeedleCount = domain.NeedleCount

const (
	EntityDesignSession = domain.EntityDesignSession
	EntityColor         = domain.EntityColor
	EntityNeedleSlot    = domain.EntityNeedleSlot
)

const (
	SwapOutcomeSwapped = domain.SwapOutcomeSwapped
	SwapOutcomeMoved   = domain.SwapOutcomeMoved
	SwapOutcomeNoop    = domain.SwapOutcomeNoop
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
