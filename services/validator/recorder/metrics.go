// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recorder

import (
	"github.com/groundgate/groundgate/services/validator/datatypes"
)

// QualityReport aggregates the offline quality metrics over every record in
// the store. Rates over an empty denominator report 0.
//
// "In KB" is taken from the final attempt's coverage snapshot: earlier
// attempts see the same passage set, so the flag cannot change within one
// cycle, but the final attempt is the one the terminal decision saw.
func (s *Store) QualityReport() (*datatypes.QualityReport, error) {
	var (
		total        int
		infraFails   int
		outOfKBReq   int // !in_kb && requires_source
		outOfKBRef   int // of those, refused
		outOfKBValid int // of those refusals, validator-driven
		inKB         int
		inKBGrounded int // accepted with sound citations
		inKBRefused  int
	)

	err := s.ForEach(func(rec *datatypes.EvaluationRecord) bool {
		total++
		if rec.InfrastructureFailure {
			infraFails++
			return true
		}

		inKnowledgeBase := false
		if n := len(rec.Attempts); n > 0 {
			inKnowledgeBase = rec.Attempts[n-1].InKB
		}
		refused := rec.Final.Action == datatypes.ActionRefuse

		if !inKnowledgeBase && rec.Query.RequiresSource {
			outOfKBReq++
			if refused {
				outOfKBRef++
				if rec.Final.ReasonCode.IsValidatorRefusal() {
					outOfKBValid++
				}
			}
		}
		if inKnowledgeBase {
			inKB++
			if refused {
				inKBRefused++
			}
			if rec.Final.Action == datatypes.ActionAccept && citationsSound(rec) {
				inKBGrounded++
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	return &datatypes.QualityReport{
		Decisions:                                total,
		RequestFailureRate:                       ratio(infraFails, total),
		RefusalRecallOnSourceRequired:            ratio(outOfKBRef, outOfKBReq),
		ValidatorOnlyRefusalRateOnSourceRequired: ratio(outOfKBValid, outOfKBRef),
		GroundedAnswerRateInKB:                   ratio(inKBGrounded, inKB),
		FalseRefusalRateInKB:                     ratio(inKBRefused, inKB),
	}, nil
}

// citationsSound checks that every cited passage id was actually supplied.
func citationsSound(rec *datatypes.EvaluationRecord) bool {
	supplied := make(map[string]bool, len(rec.PassageIDs))
	for _, id := range rec.PassageIDs {
		supplied[id] = true
	}
	for _, id := range rec.Final.Citations {
		if !supplied[id] {
			return false
		}
	}
	return true
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
