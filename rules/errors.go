package rules

import "errors"

var (
	ErrRuleNotFound      = errors.New("rule not found")
	ErrRuleExists        = errors.New("rule already exists")
	ErrInvalidDefinition = errors.New("invalid rule definition")
	ErrInvalidExpression = errors.New("invalid expression")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrCandidateExists   = errors.New("candidate already exists")
	ErrUnknownComparator = errors.New("unknown comparator")
	ErrUnknownMode       = errors.New("unknown selection mode")
)
