package authz

import "taskdeck/internal/domain"

// ValidateRelation checks the structural rules for a new edge: no
// self-relation and a known type. Parallel edges between the same pair
// are permitted, including duplicates of the same type; the graph does
// not deduplicate.
func ValidateRelation(sourceTaskID, targetTaskID string, relType domain.RelationType) error {
	if sourceTaskID == targetTaskID {
		return InvalidRelationError{Reason: "a task cannot relate to itself"}
	}
	if !domain.ValidRelationType(relType) {
		return InvalidRelationError{Reason: "unknown relation type " + string(relType)}
	}
	return nil
}
