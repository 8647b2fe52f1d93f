package core

import "resultscore/pkg/domain"

type (
	EntityType                = domain.EntityType
	Level                     = domain.Level
	MarkingRecord             = domain.MarkingRecord
	DoubleMarkingVerification = domain.DoubleMarkingVerification
	GradeCalculation          = domain.GradeCalculation
	ScoreNormalization        = domain.ScoreNormalization
	ExamResult                = domain.ExamResult
	PublicationBatch          = domain.PublicationBatch
	Certificate               = domain.Certificate
	Change                    = domain.Change
	Action                    = domain.Action
	Violation                 = domain.Violation
	Result                    = domain.Result
	RuleViolationError        = domain.RuleViolationError
	RulesEngine               = domain.RulesEngine
	Rule                      = domain.Rule
	Identity                  = domain.Identity
	Transaction               = domain.Transaction
	TransactionView           = domain.TransactionView
	PersistentStore           = domain.PersistentStore
)

const (
	LevelLower = domain.LevelLower
	LevelUpper = domain.LevelUpper
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

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
