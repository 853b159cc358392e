package store

import "github.com/jeogo/casnos-sub001/internal/models"

var transitionMap = map[string][]string{
	"call":  {models.StatusPending},
	"serve": {models.StatusCalled},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
